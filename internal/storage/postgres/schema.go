package postgres

// schemaTemplate is formatted with the table name.
const schemaTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name text NOT NULL,
	email text NOT NULL,
	phone text,
	message text NOT NULL,
	is_suspicious boolean NOT NULL DEFAULT false,
	suspicion_reason text,
	sync_status text NOT NULL DEFAULT 'pending'
		CHECK (sync_status IN ('pending', 'synced', 'needs_sync')),
	external_crm_id text,
	last_sync_attempt timestamptz,
	created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[1]s_sync_status_idx ON %[1]s (sync_status, created_at);
`
