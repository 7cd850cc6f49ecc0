package sqlinline

const QInsertPost = `--sql 09978a33-cad7-43b9-9ad6-e5898274f6b9
insert into posts (title, content, excerpt, status, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, now(), now())
returning id;
`

const QUpdatePost = `--sql 834e0346-2f9f-45a3-85ca-cdd49c7fc598
update posts set
    title      = coalesce($2::text, title),
    content    = coalesce($3::text, content),
    excerpt    = coalesce($4::text, excerpt),
    status     = coalesce($5::text, status),
    updated_at = now()
where id = $1::bigint;
`

const QSelectPost = `--sql d43598bd-cf8f-44f5-b79d-cb34a313d14a
select id, title, content, excerpt, status, created_at, updated_at
from posts
where id = $1::bigint;
`

const QDeletePostTerms = `--sql 57c5ca5b-b9ba-49ec-b16e-ee7e5b7be59d
delete from post_terms
where post_id = $1::bigint and taxonomy = $2::text;
`

const QInsertPostTerms = `--sql 689f9f0b-ecaa-43ad-84c9-ffaa51354c90
insert into post_terms (post_id, taxonomy, term)
select $1::bigint, $2::text, t
from unnest($3::text[]) as t
on conflict do nothing;
`

const QUpsertPostMeta = `--sql 6a0a2c97-ef31-4c5e-ad46-d0eb73deaa2d
insert into post_meta (post_id, meta_key, meta_value)
values ($1::bigint, $2::text, $3::text)
on conflict (post_id, meta_key) do update set meta_value = excluded.meta_value;
`

const QSelectPostMeta = `--sql 1af33df7-9799-4eb0-af24-3d6a1dfadd89
select meta_value
from post_meta
where post_id = $1::bigint and meta_key = $2::text;
`
