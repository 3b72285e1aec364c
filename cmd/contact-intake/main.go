// Package main is the contact-intake entrypoint.
package main

import "github.com/JakeFAU/contact-intake/cmd"

func main() {
	cmd.Execute()
}
