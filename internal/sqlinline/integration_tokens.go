package sqlinline

// Integration secrets are keyed by provider name; properties carry
// provider-specific hints such as the bridge kind.

const QSelectIntegrationToken = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7
select token
from kiosk_integration_tokens
where provider = $1::text;
`

const QListIntegrationTokens = `--sql 3c71e2b9-4d0a-4f6e-9b58-2e7d1a6c90f4
select provider, token, coalesce(properties->>'kind', ''), updated_at
from kiosk_integration_tokens
order by provider;
`

const QSaveIntegrationToken = `--sql 6d4f5660-0f7c-4f73-a1f3-9ab6d5e6c7a3
insert into kiosk_integration_tokens as t (provider, token, properties)
values ($1::text, $2::text, $3::jsonb)
on conflict (provider) do update
set token = excluded.token,
    properties = t.properties || excluded.properties,
    updated_at = now();
`

const QDeleteIntegrationToken = `--sql b0e94f17-52c8-4a3d-8e61-7f2c5d9a1e36
delete from kiosk_integration_tokens
where provider = $1::text;
`
