package root

import (
	"github.com/tourdesk/tourdesk-saas/apps/cli/cmd/auth"
	"github.com/tourdesk/tourdesk-saas/apps/cli/cmd/bootstrap"
	tenantcmd "github.com/tourdesk/tourdesk-saas/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
}
