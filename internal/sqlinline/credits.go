package sqlinline

// Conditional update: deducts only when the balance covers the amount, so a
// missing row on scan means the charge failed closed.
const QChargeCredits = `--sql a9a04332-51a7-4b8b-b5fc-462307dd8e52
update user_credits
set balance = balance - $2::int, updated_at = now()
where user_id = $1::uuid and balance >= $2::int
returning balance;
`

const QRefundCredits = `--sql 7b85a392-53f3-40e6-9f70-7ffeacd300ba
update user_credits
set balance = balance + $2::int, updated_at = now()
where user_id = $1::uuid
returning balance;
`

const QInsertLedgerEntry = `--sql 6876f192-b4b7-4ad5-acd2-c801764a328e
insert into credit_ledger (id, user_id, operation, delta, balance_after, created_at)
values (gen_random_uuid(), $1::uuid, $2::text, $3::int, $4::int, now());
`

const QSelectCreditBalance = `--sql d8f3c39e-ed65-494d-a60b-27524e7c2e99
select balance
from user_credits
where user_id = $1::uuid;
`

// Upsert: new users start at the granted amount, existing users top up.
const QGrantCredits = `--sql 7384120c-a9d2-4ecc-ba36-fdafab0142ce
insert into user_credits (user_id, balance, updated_at)
values ($1::uuid, $2::int, now())
on conflict (user_id) do update set
    balance = user_credits.balance + excluded.balance,
    updated_at = now()
returning balance;
`

const QInsertLedgerDrift = `--sql d0792710-9dbd-4e5b-8d40-4cf840c0fec3
insert into ledger_drift (id, user_id, amount, reason, created_at)
values (gen_random_uuid(), $1::uuid, $2::int, $3::text, now());
`
