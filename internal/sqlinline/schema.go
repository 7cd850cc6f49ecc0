package sqlinline

// QCreateSchema creates the tables the engine writes to. It is idempotent.
const QCreateSchema = `--sql b5818d80-e407-428f-a12d-89968ca16b24
create table if not exists jobs (
    id           bigserial primary key,
    subject      text not null,
    status       text not null default 'pending',
    scheduled_at timestamptz,
    generated_at timestamptz,
    published_at timestamptz,
    post_id      bigint,
    score_json   jsonb,
    images_json  jsonb,
    logs_json    jsonb not null default '[]'::jsonb,
    created_at   timestamptz not null default now(),
    updated_at   timestamptz not null default now()
);
create index if not exists jobs_due_idx on jobs (status, scheduled_at);

create table if not exists posts (
    id         bigserial primary key,
    title      text not null default '',
    content    text not null default '',
    excerpt    text not null default '',
    status     text not null default 'draft',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);

create table if not exists post_terms (
    post_id  bigint not null references posts (id) on delete cascade,
    taxonomy text not null,
    term     text not null,
    primary key (post_id, taxonomy, term)
);

create table if not exists post_meta (
    post_id    bigint not null references posts (id) on delete cascade,
    meta_key   text not null,
    meta_value text not null default '',
    primary key (post_id, meta_key)
);

create table if not exists media (
    id          bigserial primary key,
    post_id     bigint references posts (id) on delete set null,
    storage_key text not null,
    file_name   text not null,
    mime        text not null,
    size_bytes  bigint not null default 0,
    alt_text    text not null default '',
    created_at  timestamptz not null default now()
);

create table if not exists integration_tokens (
    id         uuid primary key,
    provider   text not null unique,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`
