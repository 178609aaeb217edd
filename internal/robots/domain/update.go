package domain

// StateUpdate is a device-reported partial snapshot. Nil fields are left untouched.
type StateUpdate struct {
	BatteryLevel *int             `json:"batteryLevel,omitempty" validate:"omitempty,min=0,max=100"`
	IsCharging   *bool            `json:"isCharging,omitempty"`
	Position     *PositionUpdate  `json:"location,omitempty"`
	LCD          *LCDUpdate       `json:"lcd,omitempty"`
	Dispenser    *DispenserUpdate `json:"dispenser,omitempty"`
}

type PositionUpdate struct {
	RoomID  *string  `json:"roomId,omitempty"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
	Heading *float64 `json:"heading,omitempty" validate:"omitempty,min=0,max=360"`
}

type LCDUpdate struct {
	Mode       *string `json:"mode,omitempty" validate:"omitempty,max=32"`
	Emotion    *string `json:"emotion,omitempty" validate:"omitempty,max=32"`
	Message    *string `json:"message,omitempty" validate:"omitempty,max=200"`
	SubMessage *string `json:"subMessage,omitempty" validate:"omitempty,max=200"`
}

type DispenserUpdate struct {
	Remaining *int `json:"remaining,omitempty" validate:"omitempty,min=0"`
	Capacity  *int `json:"capacity,omitempty" validate:"omitempty,min=0"`
}

// IsEmpty reports whether the update carries no field at all.
func (u StateUpdate) IsEmpty() bool {
	return u.BatteryLevel == nil && u.IsCharging == nil && u.Position == nil && u.LCD == nil && u.Dispenser == nil
}

// Apply merges the update into r.
func (u StateUpdate) Apply(r *Robot) {
	if r == nil {
		return
	}
	if u.BatteryLevel != nil {
		r.BatteryLevel = *u.BatteryLevel
	}
	if u.IsCharging != nil {
		r.IsCharging = *u.IsCharging
	}
	if p := u.Position; p != nil {
		setString(&r.Position.RoomID, p.RoomID)
		setFloat(&r.Position.X, p.X)
		setFloat(&r.Position.Y, p.Y)
		setFloat(&r.Position.Heading, p.Heading)
	}
	if l := u.LCD; l != nil {
		setString(&r.LCD.Mode, l.Mode)
		setString(&r.LCD.Emotion, l.Emotion)
		setString(&r.LCD.Message, l.Message)
		setString(&r.LCD.SubMessage, l.SubMessage)
	}
	if d := u.Dispenser; d != nil {
		setInt(&r.Dispenser.Remaining, d.Remaining)
		setInt(&r.Dispenser.Capacity, d.Capacity)
	}
}

// Columns returns the column/value pairs the update touches, in a stable order.
func (u StateUpdate) Columns() []Column {
	var cols []Column
	add := func(name string, set bool, value any) {
		if set {
			cols = append(cols, Column{Name: name, Value: value})
		}
	}
	if u.BatteryLevel != nil {
		add("battery_level", true, *u.BatteryLevel)
	}
	if u.IsCharging != nil {
		add("is_charging", true, *u.IsCharging)
	}
	if p := u.Position; p != nil {
		add("room_id", p.RoomID != nil, deref(p.RoomID))
		add("position_x", p.X != nil, deref(p.X))
		add("position_y", p.Y != nil, deref(p.Y))
		add("heading", p.Heading != nil, deref(p.Heading))
	}
	if l := u.LCD; l != nil {
		add("lcd_mode", l.Mode != nil, deref(l.Mode))
		add("lcd_emotion", l.Emotion != nil, deref(l.Emotion))
		add("lcd_message", l.Message != nil, deref(l.Message))
		add("lcd_sub_message", l.SubMessage != nil, deref(l.SubMessage))
	}
	if d := u.Dispenser; d != nil {
		add("dispenser_remaining", d.Remaining != nil, deref(d.Remaining))
		add("dispenser_capacity", d.Capacity != nil, deref(d.Capacity))
	}
	return cols
}

// SettingsUpdate changes owner-configured schedules.
type SettingsUpdate struct {
	MorningMedicationTime *string `json:"morningMedicationTime,omitempty" validate:"omitempty,datetime=15:04"`
	EveningMedicationTime *string `json:"eveningMedicationTime,omitempty" validate:"omitempty,datetime=15:04"`
	PatrolStartTime       *string `json:"patrolStartTime,omitempty" validate:"omitempty,datetime=15:04"`
	PatrolEndTime         *string `json:"patrolEndTime,omitempty" validate:"omitempty,datetime=15:04"`
	Volume                *int    `json:"volume,omitempty" validate:"omitempty,min=0,max=100"`
}

func (u SettingsUpdate) IsEmpty() bool {
	return u.MorningMedicationTime == nil && u.EveningMedicationTime == nil &&
		u.PatrolStartTime == nil && u.PatrolEndTime == nil && u.Volume == nil
}

func (u SettingsUpdate) Apply(s *Settings) {
	if s == nil {
		return
	}
	setString(&s.MorningMedicationTime, u.MorningMedicationTime)
	setString(&s.EveningMedicationTime, u.EveningMedicationTime)
	setString(&s.PatrolStartTime, u.PatrolStartTime)
	setString(&s.PatrolEndTime, u.PatrolEndTime)
	setInt(&s.Volume, u.Volume)
}

func (u SettingsUpdate) Columns() []Column {
	var cols []Column
	if u.MorningMedicationTime != nil {
		cols = append(cols, Column{Name: "morning_medication_time", Value: *u.MorningMedicationTime})
	}
	if u.EveningMedicationTime != nil {
		cols = append(cols, Column{Name: "evening_medication_time", Value: *u.EveningMedicationTime})
	}
	if u.PatrolStartTime != nil {
		cols = append(cols, Column{Name: "patrol_start_time", Value: *u.PatrolStartTime})
	}
	if u.PatrolEndTime != nil {
		cols = append(cols, Column{Name: "patrol_end_time", Value: *u.PatrolEndTime})
	}
	if u.Volume != nil {
		cols = append(cols, Column{Name: "volume", Value: *u.Volume})
	}
	return cols
}

// Column is one field-level assignment.
type Column struct {
	Name  string
	Value any
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}
