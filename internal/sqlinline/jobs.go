package sqlinline

const QInsertJob = `--sql 0221232b-6f1d-47a7-906a-88ff59a7b4fe
insert into jobs (subject, status, scheduled_at, generated_at, published_at, post_id, score_json, images_json, logs_json, created_at, updated_at)
values ($1::text, $2::text, $3::timestamptz, $4::timestamptz, $5::timestamptz, $6::bigint, $7::jsonb, $8::jsonb, coalesce($9::jsonb, '[]'::jsonb), now(), now())
returning id;
`

// QUpdateJob applies a partial update. Each column has a boolean flag; an
// unflagged column keeps its value, except published_at which is cleared
// whenever status moves away from published.
const QUpdateJob = `--sql ae20d544-71a2-4c26-a74b-c400199cf9bd
update jobs set
    status       = case when $2::boolean then $3::text else status end,
    generated_at = case when $4::boolean then $5::timestamptz else generated_at end,
    published_at = case
                     when $6::boolean then $7::timestamptz
                     when $2::boolean and $3::text <> 'published' then null
                     else published_at
                   end,
    post_id      = case when $8::boolean then $9::bigint else post_id end,
    score_json   = case when $10::boolean then $11::jsonb else score_json end,
    images_json  = case when $12::boolean then $13::jsonb else images_json end,
    logs_json    = case when $14::boolean then $15::jsonb else logs_json end,
    updated_at   = now()
where id = $1::bigint;
`

const QSelectJob = `--sql 2f4080ff-f3b7-4aaa-9372-7231eb5fac21
select id, subject, status, scheduled_at, generated_at, published_at, post_id, score_json, images_json, logs_json
from jobs
where id = $1::bigint;
`

const QListRecentJobs = `--sql 882f8e63-ede2-4609-b5fa-2761fce62c16
select id, subject, status, scheduled_at, generated_at, published_at, post_id, score_json, images_json, logs_json
from jobs
order by id desc
limit $1::int;
`

const QListDueJobs = `--sql ecc10c3b-142f-477b-a6e4-b454146aae7f
select id, subject, status, scheduled_at, generated_at, published_at, post_id, score_json, images_json, logs_json
from jobs
where status = 'scheduled'
  and scheduled_at is not null
  and scheduled_at <= $1::timestamptz
order by scheduled_at asc, id asc
limit $2::int;
`

const QPurgeJobs = `--sql f65ccb32-5403-4e32-9f3f-c30a9f67f8ca
delete from jobs;
`

const QTryJobLock = `--sql b3870c85-a368-4a99-8b32-aa22b05e2916
select pg_try_advisory_lock(hashtext('contentengine.job'), ($1::bigint % 2147483647)::int);
`

const QReleaseJobLock = `--sql f423c72e-7754-4038-b541-c17d5bc156ff
select pg_advisory_unlock(hashtext('contentengine.job'), ($1::bigint % 2147483647)::int);
`
