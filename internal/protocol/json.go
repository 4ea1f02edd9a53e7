package protocol

import (
	"encoding/json"
	"strconv"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
)

// jsonTemp renders a temperature with two decimals, or null when invalid.
type jsonTemp temp.Temp

func (t jsonTemp) MarshalJSON() ([]byte, error) {
	v := temp.Temp(t)
	if !v.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Format(2))
}

// jsonDiff renders a difference with two decimals.
type jsonDiff temp.Diff

func (d jsonDiff) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatFloat(temp.Diff(d).Celsius(), 'f', 2, 64))
}

type errorDoc struct {
	Error string `json:"error"`
}

type temperaturesJSON struct {
	State      string   `json:"state"`
	Mode       string   `json:"mode"`
	BeerTemp   jsonTemp `json:"beerTemp"`
	BeerSet    jsonTemp `json:"beerSet"`
	FridgeTemp jsonTemp `json:"fridgeTemp"`
	FridgeSet  jsonTemp `json:"fridgeSet"`
	RoomTemp   jsonTemp `json:"roomTemp"`
	BeerSlope  jsonDiff `json:"beerSlope"`
	DoorOpen   bool     `json:"doorOpen"`
	Heater     bool     `json:"heater"`
	Cooler     bool     `json:"cooler"`
}

func temperaturesDoc(s control.Snapshot) temperaturesJSON {
	return temperaturesJSON{
		State:      string(s.State),
		Mode:       string(s.Settings.Mode),
		BeerTemp:   jsonTemp(s.Beer.Slow),
		BeerSet:    jsonTemp(s.Settings.BeerSetting),
		FridgeTemp: jsonTemp(s.Fridge.Slow),
		FridgeSet:  jsonTemp(s.Settings.FridgeSetting),
		RoomTemp:   jsonTemp(s.Room.Slow),
		BeerSlope:  jsonDiff(s.Beer.Slope),
		DoorOpen:   s.DoorOpen,
		Heater:     s.Outputs.Heater,
		Cooler:     s.Outputs.Cooler,
	}
}

type rawReadingJSON struct {
	Attached  bool     `json:"attached"`
	Connected bool     `json:"connected"`
	Raw       jsonTemp `json:"raw"`
	Fast      jsonTemp `json:"fast"`
	Slow      jsonTemp `json:"slow"`
}

func rawReading(r control.Reading) rawReadingJSON {
	return rawReadingJSON{
		Attached:  r.Attached,
		Connected: r.Connected,
		Raw:       jsonTemp(r.Raw),
		Fast:      jsonTemp(r.Fast),
		Slow:      jsonTemp(r.Slow),
	}
}

type rawJSON struct {
	Beer   rawReadingJSON `json:"beer"`
	Fridge rawReadingJSON `json:"fridge"`
	Room   rawReadingJSON `json:"room"`
}

func rawDoc(s control.Snapshot) rawJSON {
	return rawJSON{
		Beer:   rawReading(s.Beer),
		Fridge: rawReading(s.Fridge),
		Room:   rawReading(s.Room),
	}
}

type settingsJSON struct {
	Mode      string   `json:"mode"`
	BeerSet   jsonTemp `json:"beerSet"`
	FridgeSet jsonTemp `json:"fridgeSet"`
}

func settingsDocFrom(s control.Settings) settingsJSON {
	return settingsJSON{
		Mode:      string(s.Mode),
		BeerSet:   jsonTemp(s.BeerSetting),
		FridgeSet: jsonTemp(s.FridgeSetting),
	}
}

type constantsJSON struct {
	TempSetMin      jsonTemp `json:"tempSetMin"`
	TempSetMax      jsonTemp `json:"tempSetMax"`
	Kp              jsonDiff `json:"Kp"`
	Ki              jsonDiff `json:"Ki"`
	Kd              jsonDiff `json:"Kd"`
	IMaxErr         jsonDiff `json:"iMaxErr"`
	PidMax          jsonDiff `json:"pidMax"`
	HystHigh        jsonDiff `json:"hystHigh"`
	HystLow         jsonDiff `json:"hystLow"`
	MinCoolOn       uint32   `json:"minCoolOn"`
	MinCoolOff      uint32   `json:"minCoolOff"`
	MinHeatOn       uint32   `json:"minHeatOn"`
	MinHeatOff      uint32   `json:"minHeatOff"`
	MinSwitch       uint32   `json:"minSwitch"`
	FaultTicks      uint32   `json:"faultTicks"`
	FridgeFastFilt  uint8    `json:"fridgeFastFilt"`
	FridgeSlowFilt  uint8    `json:"fridgeSlowFilt"`
	FridgeSlopeFilt uint8    `json:"fridgeSlopeFilt"`
	BeerFastFilt    uint8    `json:"beerFastFilt"`
	BeerSlowFilt    uint8    `json:"beerSlowFilt"`
	BeerSlopeFilt   uint8    `json:"beerSlopeFilt"`
}

func constantsDocFrom(k control.Constants) constantsJSON {
	return constantsJSON{
		TempSetMin:      jsonTemp(k.TempSettingMin),
		TempSetMax:      jsonTemp(k.TempSettingMax),
		Kp:              jsonDiff(k.Kp),
		Ki:              jsonDiff(k.Ki),
		Kd:              jsonDiff(k.Kd),
		IMaxErr:         jsonDiff(k.IMaxError),
		PidMax:          jsonDiff(k.PidMax),
		HystHigh:        jsonDiff(k.HysteresisHigh),
		HystLow:         jsonDiff(k.HysteresisLow),
		MinCoolOn:       uint32(k.MinCoolOnTime),
		MinCoolOff:      uint32(k.MinCoolOffTime),
		MinHeatOn:       uint32(k.MinHeatOnTime),
		MinHeatOff:      uint32(k.MinHeatOffTime),
		MinSwitch:       uint32(k.MinSwitchTime),
		FaultTicks:      k.FaultThreshold,
		FridgeFastFilt:  k.FridgeFilter.Fast,
		FridgeSlowFilt:  k.FridgeFilter.Slow,
		FridgeSlopeFilt: k.FridgeFilter.Slope,
		BeerFastFilt:    k.BeerFilter.Fast,
		BeerSlowFilt:    k.BeerFilter.Slow,
		BeerSlopeFilt:   k.BeerFilter.Slope,
	}
}

type variablesJSON struct {
	State              string   `json:"state"`
	BeerDiff           jsonDiff `json:"beerDiff"`
	DiffIntegral       jsonDiff `json:"diffIntegral"`
	BeerSlope          jsonDiff `json:"beerSlope"`
	P                  jsonDiff `json:"p"`
	I                  jsonDiff `json:"i"`
	D                  jsonDiff `json:"d"`
	FridgeEstimate     jsonTemp `json:"fridgeEstimate"`
	WaitTime           uint32   `json:"waitTime"`
	InvalidReadings    uint32   `json:"invalidReadings"`
	ConsecutiveInvalid uint32   `json:"consecutiveInvalid"`
	SensorFault        bool     `json:"sensorFault"`
	StorageFailures    uint32   `json:"storageFailures"`
	StorageFault       bool     `json:"storageFault"`
	HeatCycles         int      `json:"heatCycles"`
	CoolCycles         int      `json:"coolCycles"`
}

func variablesDoc(s control.Snapshot) variablesJSON {
	v := s.Variables
	return variablesJSON{
		State:              string(s.State),
		BeerDiff:           jsonDiff(v.BeerDiff),
		DiffIntegral:       jsonDiff(temp.SaturateDiff(int64(v.DiffIntegral))),
		BeerSlope:          jsonDiff(v.BeerSlope),
		P:                  jsonDiff(v.P),
		I:                  jsonDiff(v.I),
		D:                  jsonDiff(v.D),
		FridgeEstimate:     jsonTemp(v.FridgeEstimate),
		WaitTime:           uint32(s.WaitTime),
		InvalidReadings:    s.Faults.InvalidReadings,
		ConsecutiveInvalid: s.Faults.ConsecutiveInvalid,
		SensorFault:        s.Faults.SensorFault,
		StorageFailures:    s.Faults.StorageFailures,
		StorageFault:       s.Faults.StorageFault,
		HeatCycles:         s.Cycles.Heat,
		CoolCycles:         s.Cycles.Cool,
	}
}
