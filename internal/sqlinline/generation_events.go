package sqlinline

const QInsertGenerationEvent = `--sql e40f651c-a8b3-44c7-a911-bb8a0ed5f6ef
insert into kiosk_generation_events (id, session_id, flow, outcome, failure_kind, latency_ms, created_at)
values ($1::uuid, $2::uuid, $3::text, $4::text, nullif($5::text, ''), $6::int, now());
`

const QSummarizeGenerationEvents = `--sql 3c9d2b7e-41f8-4a6d-b0e2-7f15c8a9d364
select flow,
       outcome,
       count(*)::int as total,
       coalesce(avg(latency_ms), 0)::int as avg_latency_ms
from kiosk_generation_events
where created_at >= $1::timestamptz
group by flow, outcome
order by flow, outcome;
`
