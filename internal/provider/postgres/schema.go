package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS queue_items (
    id             TEXT PRIMARY KEY,
    queue_type     TEXT NOT NULL,
    status         TEXT NOT NULL,
    payload        JSONB NOT NULL,
    result         JSONB,
    error          TEXT,
    correlation_id TEXT,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    archived_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_queue_items_type_created ON queue_items (queue_type, created_at);
CREATE INDEX IF NOT EXISTS idx_queue_items_correlation ON queue_items (correlation_id);

CREATE TABLE IF NOT EXISTS stagings (
    id          TEXT PRIMARY KEY,
    region_id   TEXT NOT NULL,
    location_id TEXT NOT NULL,
    world_id    TEXT NOT NULL,
    game_time   TIMESTAMPTZ NOT NULL,
    approved_at TIMESTAMPTZ NOT NULL,
    ttl_hours   INTEGER NOT NULL,
    approved_by TEXT NOT NULL,
    source      TEXT NOT NULL,
    guidance    TEXT,
    is_active   BOOLEAN NOT NULL,
    npcs        JSONB NOT NULL,
    archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_stagings_region_approved ON stagings (region_id, approved_at DESC);

CREATE TABLE IF NOT EXISTS archive_cursors (
    scope        TEXT NOT NULL,
    data_type    TEXT NOT NULL,
    cursor_value TEXT NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (scope, data_type)
);
`
