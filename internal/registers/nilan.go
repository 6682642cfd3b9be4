// internal/registers/nilan.go
package registers

// Register map of the Nilan ventilation / heat-pump family.
// Addresses, banks and scaling are the contract with the device.

const (
	HVACMode                  Attribute = "hvac_mode"
	HVACAction                Attribute = "hvac_action"
	TargetTemperature         Attribute = "target_temperature"
	CurrentTemperature        Attribute = "current_temperature"
	CurrentHumidity           Attribute = "current_humidity"
	InletFanSpeed             Attribute = "inlet_fan_speed"
	ExhaustFanSpeed           Attribute = "exhaust_fan_speed"
	RequestedCapacity         Attribute = "requested_capacity"
	ActualCapacity            Attribute = "actual_capacity"
	DaysSinceFilterChange     Attribute = "days_since_filter_change"
	DaysToFilterChange        Attribute = "days_to_filter_change"
	AlarmStatus               Attribute = "alarm_status"
	VentilationState          Attribute = "ventilation_state"
	IntakeTemperature         Attribute = "intake_temperature"
	RoomExhaustTemperature    Attribute = "room_exhaust_temperature"
	HotWaterTopTemperature    Attribute = "hot_water_top_temperature"
	HotWaterBottomTemperature Attribute = "hot_water_bottom_temperature"
	HotWaterAnode             Attribute = "hot_water_anode"
	HotwaterTopSetpoint       Attribute = "hotwater_top_setpoint"
	HotwaterBottomSetpoint    Attribute = "hotwater_bottom_setpoint"
	CoolingSetpoint           Attribute = "cooling_setpoint"
	AirExchangeMode           Attribute = "air_exchange_mode"
	FanMode                   Attribute = "fan_mode"
)

// DefaultSlave is the factory unit address of the family.
const DefaultSlave uint8 = 30

var (
	temperature = Linear{Factor: 0.01, Signed: true}
	hundredths  = Linear{Factor: 0.01}
)

// HVAC mode labels. Off is reported by the unit but cannot be commanded.
const (
	ModeOff      = "Off"
	ModeHeat     = "Heat"
	ModeCool     = "Cool"
	ModeHeatCool = "HeatCool"
)

var hvacModes = EnumMap{
	Codes: map[uint16]string{
		0: ModeOff,
		1: ModeHeat,
		2: ModeCool,
		3: ModeHeatCool,
	},
	Default: ModeOff,
}

var hvacActions = EnumMap{
	Codes: map[uint16]string{
		0:  "Off",
		1:  "Shifting",
		2:  "Stopping",
		3:  "Start",
		4:  "Standby",
		5:  "Ventilation stop",
		6:  "Fan",
		7:  "Heating",
		8:  "Cooling",
		9:  "Hotwater",
		10: "Legionella",
		11: "Cooling and Hotwater",
		12: "Central heating",
		13: "Defrost",
		14: "Frost secure",
		15: "Service",
		16: "Alarm",
		17: "Heating hotwater",
	},
	Default: "Off",
}

var fanModes = EnumMap{
	Codes: map[uint16]string{
		0: "off",
		1: "min",
		2: "normal-low",
		3: "normal-high",
		4: "high",
	},
	Default: "unknown",
}

var airExchangeModes = EnumMap{
	Codes: map[uint16]string{
		0: "Energy",
		1: "Comfort",
		2: "ComfortWater",
	},
	Default: "Unknown",
}

var coolingSetpoints = EnumMap{
	Codes: map[uint16]string{
		0: "Off",
		1: "Set + 0 °C",
		2: "Set + 1 °C",
		3: "Set + 2 °C",
		4: "Set + 3 °C",
		5: "Set + 4 °C",
		6: "Set + 5 °C",
		7: "Set + 7 °C",
		8: "Set + 10 °C",
	},
	Default: "Unknown",
}

func holding(addr uint16) Address { return Address{Bank: Holding, Addr: addr, Count: 1} }
func input(addr uint16) Address   { return Address{Bank: Input, Addr: addr, Count: 1} }

// Map is the full register map in poll order.
var Map = []AttributeSpec{
	{Name: HVACMode, Address: holding(1002), Rule: hvacModes, Access: ReadWrite, Title: "HVAC mode"},
	{Name: HVACAction, Address: input(1002), Rule: hvacActions, Access: ReadOnly, Notify: true, Title: "HVAC action"},
	{Name: TargetTemperature, Address: holding(1004), Rule: temperature, Access: ReadWrite, Title: "Target temperature", Unit: "°C"},
	{Name: CurrentTemperature, Address: input(1202), Rule: temperature, Access: ReadOnly, Title: "Current temperature", Unit: "°C"},
	{Name: CurrentHumidity, Address: input(221), Rule: hundredths, Access: ReadOnly, Title: "Current humidity", Unit: "%"},
	{Name: InletFanSpeed, Address: input(1101), Rule: Identity{}, Access: ReadOnly, Title: "Inlet fan speed"},
	{Name: ExhaustFanSpeed, Address: input(1102), Rule: Identity{}, Access: ReadOnly, Title: "Exhaust fan speed"},
	{Name: RequestedCapacity, Address: input(1205), Rule: hundredths, Access: ReadOnly, Title: "Requested capacity", Unit: "%"},
	{Name: ActualCapacity, Address: input(1206), Rule: hundredths, Access: ReadOnly, Title: "Actual capacity", Unit: "%"},
	{Name: DaysSinceFilterChange, Address: input(1103), Rule: Identity{}, Access: ReadOnly, Title: "Days since filter change", Unit: "d"},
	{Name: DaysToFilterChange, Address: input(1104), Rule: Identity{}, Access: ReadOnly, Title: "Days to filter change", Unit: "d"},
	{Name: AlarmStatus, Address: input(400), Rule: Identity{}, Access: ReadOnly, Notify: true, Title: "Alarm status"},
	{Name: VentilationState, Address: input(3102), Rule: Identity{}, Access: ReadOnly, Title: "Ventilation state"},
	{Name: IntakeTemperature, Address: input(201), Rule: temperature, Access: ReadOnly, Title: "Intake temperature", Unit: "°C"},
	{Name: RoomExhaustTemperature, Address: input(204), Rule: temperature, Access: ReadOnly, Title: "Room exhaust temperature", Unit: "°C"},
	{Name: HotWaterTopTemperature, Address: input(211), Rule: temperature, Access: ReadOnly, Title: "Hot water top temperature", Unit: "°C"},
	{Name: HotWaterBottomTemperature, Address: input(212), Rule: temperature, Access: ReadOnly, Title: "Hot water bottom temperature", Unit: "°C"},
	{Name: HotWaterAnode, Address: input(216), Rule: hundredths, Access: ReadOnly, Title: "Hot water anode"},
	{Name: HotwaterTopSetpoint, Address: holding(1700), Rule: temperature, Access: ReadWrite, Title: "Boiler top temperature setpoint", Unit: "°C"},
	{Name: HotwaterBottomSetpoint, Address: holding(1701), Rule: temperature, Access: ReadWrite, Title: "Boiler bottom temperature setpoint", Unit: "°C"},
	{Name: CoolingSetpoint, Address: holding(1200), Rule: coolingSetpoints, Access: ReadWrite, Title: "Cooling setpoint"},
	{Name: AirExchangeMode, Address: holding(1100), Rule: airExchangeModes, Access: ReadWrite, Title: "Air exchange mode"},
	{Name: FanMode, Address: holding(1003), Rule: fanModes, Access: ReadWrite, Title: "Fan mode"},
}

var byName = func() map[Attribute]AttributeSpec {
	m := make(map[Attribute]AttributeSpec, len(Map))
	for _, s := range Map {
		m[s.Name] = s
	}
	return m
}()

// Lookup returns the spec registered under name.
func Lookup(name Attribute) (AttributeSpec, bool) {
	s, ok := byName[name]
	return s, ok
}

// Select returns the specs for names in register-map order.
// Unknown names are ignored.
func Select(names ...Attribute) []AttributeSpec {
	want := make(map[Attribute]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := make([]AttributeSpec, 0, len(names))
	for _, s := range Map {
		if want[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
