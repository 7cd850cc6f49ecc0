package sqlinline

const QInsertMedia = `--sql 6be0041a-7fa9-4ae4-a1a6-efd051ac3d01
insert into media (post_id, storage_key, file_name, mime, size_bytes, alt_text, created_at)
values (nullif($1::bigint, 0), $2::text, $3::text, $4::text, $5::bigint, '', now())
returning id;
`

const QUpdateMediaAlt = `--sql 0532bf39-d19d-49fb-a8db-f845129bd326
update media set alt_text = $2::text
where id = $1::bigint;
`

const QSelectMediaKey = `--sql 5087897a-bff3-4705-81f0-43f0a996dde6
select storage_key
from media
where id = $1::bigint;
`
