package sqlinline

const QEnqueueCampaign = `--sql 14d00bc6-fe07-4ea5-a90b-f5bee6dbabdf
insert into campaigns (id, user_id, status, config, created_at, updated_at)
values ($1::uuid, $2::uuid, 'queued', $3::jsonb, now(), now())
returning id;
`

const QClaimCampaign = `--sql 49c995a7-78f2-4e45-938a-4d8aac889620
with next_campaign as (
    select id, regenerate_item
    from campaigns
    where status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
claimed as (
    update campaigns
    set status = 'running', regenerate_item = null, updated_at = now()
    where id in (select id from next_campaign)
    returning id, user_id, config
)
select c.id, c.user_id, c.config, n.regenerate_item
from claimed c
join next_campaign n on n.id = c.id;
`

const QUpdateCampaignStatus = `--sql 286ec6c6-3874-4ba8-a97d-bacbcc35b61a
update campaigns
set status = $2::text, updated_at = now()
where id = $1::uuid;
`

const QSelectCampaign = `--sql 649577a5-e48e-4aa4-bdbd-5db9e3feccb9
select id, user_id, status, config, created_at, updated_at
from campaigns
where id = $1::uuid and user_id = $2::uuid;
`

const QUpsertCampaignItem = `--sql ae3bf1e0-d9b7-4128-b59c-3fa2427a22f6
insert into campaign_items (campaign_id, item_id, scene_label, seed, status, progress, image_ref, video_ref, error_message, updated_at)
values ($1::uuid, $2::int, $3::text, $4::bigint, $5::text, $6::int, $7::text, $8::text, $9::text, now())
on conflict (campaign_id, item_id) do update set
    status = excluded.status,
    progress = excluded.progress,
    image_ref = excluded.image_ref,
    video_ref = excluded.video_ref,
    error_message = excluded.error_message,
    updated_at = now();
`

const QSelectCampaignItems = `--sql 3ec834d2-057f-4b77-88ee-b621d65a7c3b
select item_id, scene_label, seed, status, progress, image_ref, video_ref, error_message
from campaign_items
where campaign_id = $1::uuid
order by item_id asc;
`

const QEnqueueItemRegeneration = `--sql c47d3adf-113a-49ef-b8b4-d42780153e3c
update campaigns
set status = 'queued', regenerate_item = $3::int, updated_at = now()
where id = $1::uuid and user_id = $2::uuid and status in ('succeeded', 'failed')
returning id;
`
