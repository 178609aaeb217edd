package auth

// PrincipalKind distinguishes the two identities that reach robot endpoints.
type PrincipalKind string

const (
	KindHuman  PrincipalKind = "HUMAN"
	KindDevice PrincipalKind = "DEVICE"
)

// Principal is either Human(userID) or Device(robotID). The zero value is neither.
type Principal struct {
	kind PrincipalKind
	id   string
}

// Human builds the principal of a signed-in user.
func Human(userID string) Principal {
	return Principal{kind: KindHuman, id: userID}
}

// Device builds the principal of a robot acting on its own behalf.
func Device(robotID string) Principal {
	return Principal{kind: KindDevice, id: robotID}
}

func (p Principal) Kind() PrincipalKind { return p.kind }

func (p Principal) IsHuman() bool { return p.kind == KindHuman && p.id != "" }

func (p Principal) IsDevice() bool { return p.kind == KindDevice && p.id != "" }

// UserID is empty unless p is a human.
func (p Principal) UserID() string {
	if p.kind != KindHuman {
		return ""
	}
	return p.id
}

// RobotID is empty unless p is a device.
func (p Principal) RobotID() string {
	if p.kind != KindDevice {
		return ""
	}
	return p.id
}

// Subject is the raw identity, used for audit and logs.
func (p Principal) Subject() string { return p.id }

func (p Principal) String() string {
	if p.kind == "" {
		return "anonymous"
	}
	return string(p.kind) + ":" + p.id
}
