package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bridge_transactions (
	tx_hash BYTEA PRIMARY KEY,
	chain TEXT NOT NULL,
	method TEXT NOT NULL,
	to_address BYTEA NOT NULL,
	status TEXT NOT NULL,
	block_number BIGINT NOT NULL DEFAULT 0,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

	CONSTRAINT tx_hash_len CHECK (octet_length(tx_hash) = 32),
	CONSTRAINT to_address_len CHECK (octet_length(to_address) = 20),
	CONSTRAINT chain_known CHECK (chain IN ('root', 'child')),
	CONSTRAINT status_known CHECK (status IN ('pending', 'confirmed', 'failed'))
);

CREATE INDEX IF NOT EXISTS bridge_transactions_submitted_idx ON bridge_transactions (submitted_at DESC);
`
