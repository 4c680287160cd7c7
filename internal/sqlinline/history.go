package sqlinline

const QInsertHistory = `--sql db614d4b-f92e-4227-9c92-26a89154ea3a
insert into generation_history (id, user_id, campaign_id, item_id, kind, credits_used, input_ref, image_ref, video_ref, metadata, created_at)
values (gen_random_uuid(), $1::uuid, $2::uuid, $3::int, $4::text, $5::int, $6::text, $7::text, $8::text, coalesce($9::jsonb, '{}'::jsonb), now());
`

const QSelectHistoryForUser = `--sql 71d10f5e-09ef-4654-a1eb-b3507a227bbf
select campaign_id, item_id, kind, credits_used, image_ref, video_ref, metadata, created_at
from generation_history
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
