package sqlassets

import _ "embed"

//go:embed schema/tenants.sql
var TenantsSQL string

//go:embed schema/app_users.sql
var AppUsersSQL string

//go:embed schema/operational.sql
var OperationalSQL string
