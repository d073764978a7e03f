package enums

import "fmt"

// ActorRole is the market role an actor acts in, using the Danish market
// role codes carried on every market document.
type ActorRole string

const (
	RoleEnergySupplier         ActorRole = "DDQ"
	RoleGridOperator           ActorRole = "DDM"
	RoleMeteredDataResponsible ActorRole = "MDR"
	RoleBalanceResponsible     ActorRole = "DDK"
	RoleMeteringPointAdmin     ActorRole = "DGL"
)

var validActorRoles = []ActorRole{
	RoleEnergySupplier,
	RoleGridOperator,
	RoleMeteredDataResponsible,
	RoleBalanceResponsible,
	RoleMeteringPointAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known market role code.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
