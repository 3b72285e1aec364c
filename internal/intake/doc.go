// Package intake defines the contact-form admission pipeline: the shared
// types, the collaborator interfaces, and the Service that sequences bot
// filtering, validation, rate limiting, persistence and best-effort CRM
// synchronization behind a fixed, user-safe response contract.
package intake
