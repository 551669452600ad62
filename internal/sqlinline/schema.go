package sqlinline

const QEnsureSchema = `--sql 5f2a8c61-9d47-4e3b-8a1c-6b0e4d7f2c19
create table if not exists kiosk_integration_tokens (
    provider text primary key,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create table if not exists kiosk_generation_events (
    id uuid primary key,
    session_id uuid not null,
    flow text not null,
    outcome text not null,
    failure_kind text,
    latency_ms int not null,
    created_at timestamptz not null default now()
);
create index if not exists kiosk_generation_events_created_at_idx on kiosk_generation_events (created_at);
`
