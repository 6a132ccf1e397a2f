package rbac

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

type Permission string

const (
	PermAccountsManage        Permission = "accounts.manage"
	PermResourcesManage       Permission = "resources.manage"
	PermIncidentsManage       Permission = "incidents.manage"
	PermIncidentsReport       Permission = "incidents.report"
	PermIncidentsAccept       Permission = "incidents.accept"
	PermIncidentsUpdateStatus Permission = "incidents.update_status"
	PermIncidentsViewAll      Permission = "incidents.view_all"
	PermDashboardAdmin        Permission = "dashboard.admin"
	PermDashboardRescue       Permission = "dashboard.rescue"
	PermDashboardUser         Permission = "dashboard.user"
)

const modelText = `
[request_definition]
r = sub, perm

[policy_definition]
p = sub, perm

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.perm == p.perm
`

// Default grants for the three mutually exclusive roles.
var defaultGrants = map[string][]Permission{
	"admin": {
		PermAccountsManage,
		PermResourcesManage,
		PermIncidentsManage,
		PermIncidentsUpdateStatus,
		PermIncidentsViewAll,
		PermDashboardAdmin,
	},
	"rescue_team": {
		PermIncidentsAccept,
		PermIncidentsUpdateStatus,
		PermIncidentsViewAll,
		PermDashboardRescue,
	},
	"user": {
		PermIncidentsReport,
		PermDashboardUser,
	},
}

// Policy answers role/permission questions for the whole application.
// It is evaluated once at each operation boundary and wraps a casbin
// enforcer loaded with the grants above.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("rbac model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac enforcer: %w", err)
	}
	for role, perms := range defaultGrants {
		for _, perm := range perms {
			if _, err := e.AddPolicy(role, string(perm)); err != nil {
				return nil, fmt.Errorf("rbac grant %s/%s: %w", role, perm, err)
			}
		}
	}
	return &Policy{enforcer: e}, nil
}

func MustNewPolicy() *Policy {
	p, err := NewPolicy()
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Policy) Allowed(role string, perm Permission) bool {
	if p == nil || p.enforcer == nil {
		return false
	}
	ok, err := p.enforcer.Enforce(role, string(perm))
	return err == nil && ok
}

func (p *Policy) AllowedAny(role string, perms ...Permission) bool {
	for _, perm := range perms {
		if p.Allowed(role, perm) {
			return true
		}
	}
	return false
}

// Permissions lists the grants held by a role, for session payloads.
func (p *Policy) Permissions(role string) []string {
	var out []string
	for _, perm := range defaultGrants[role] {
		out = append(out, string(perm))
	}
	return out
}
