package sqlassets

import _ "embed"

//go:embed schema/platform/companies.sql
var CompaniesSQL string

//go:embed schema/platform/plans.sql
var PlansSQL string

//go:embed schema/platform/subscriptions.sql
var SubscriptionsSQL string

//go:embed schema/platform/logs.sql
var LogsSQL string
