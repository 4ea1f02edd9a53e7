package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sweeney/ferment-controller/internal/control"
	"github.com/sweeney/ferment-controller/internal/temp"
	"github.com/sweeney/ferment-controller/internal/ticks"
)

// ErrMalformed is returned for a request whose payload cannot be decoded.
var ErrMalformed = errors.New("protocol: malformed request")

// ErrUnknownKey is returned for a j request naming an unknown setting.
var ErrUnknownKey = errors.New("protocol: unknown key")

type setter func(s *control.Settings, k *control.Constants, v string) error

func tempKey(field func(*control.Settings, *control.Constants) *temp.Temp) setter {
	return func(s *control.Settings, k *control.Constants, v string) error {
		t, err := temp.Parse(v)
		if err != nil {
			return err
		}
		*field(s, k) = t
		return nil
	}
}

func diffKey(field func(*control.Constants) *temp.Diff) setter {
	return func(_ *control.Settings, k *control.Constants, v string) error {
		d, err := temp.ParseDiff(v)
		if err != nil {
			return err
		}
		*field(k) = d
		return nil
	}
}

func secondsKey(field func(*control.Constants) *ticks.Seconds) setter {
	return func(_ *control.Settings, k *control.Constants, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		*field(k) = ticks.Seconds(n)
		return nil
	}
}

func filterKey(field func(*control.Constants) *uint8) setter {
	return func(_ *control.Settings, k *control.Constants, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}
		*field(k) = uint8(n)
		return nil
	}
}

var setters = map[string]setter{
	"mode": func(s *control.Settings, _ *control.Constants, v string) error {
		s.Mode = control.Mode(v)
		return nil
	},
	"beerSet":   tempKey(func(s *control.Settings, _ *control.Constants) *temp.Temp { return &s.BeerSetting }),
	"fridgeSet": tempKey(func(s *control.Settings, _ *control.Constants) *temp.Temp { return &s.FridgeSetting }),

	"tempSetMin": tempKey(func(_ *control.Settings, k *control.Constants) *temp.Temp { return &k.TempSettingMin }),
	"tempSetMax": tempKey(func(_ *control.Settings, k *control.Constants) *temp.Temp { return &k.TempSettingMax }),

	"Kp":       diffKey(func(k *control.Constants) *temp.Diff { return &k.Kp }),
	"Ki":       diffKey(func(k *control.Constants) *temp.Diff { return &k.Ki }),
	"Kd":       diffKey(func(k *control.Constants) *temp.Diff { return &k.Kd }),
	"iMaxErr":  diffKey(func(k *control.Constants) *temp.Diff { return &k.IMaxError }),
	"pidMax":   diffKey(func(k *control.Constants) *temp.Diff { return &k.PidMax }),
	"hystHigh": diffKey(func(k *control.Constants) *temp.Diff { return &k.HysteresisHigh }),
	"hystLow":  diffKey(func(k *control.Constants) *temp.Diff { return &k.HysteresisLow }),

	"minCoolOn":  secondsKey(func(k *control.Constants) *ticks.Seconds { return &k.MinCoolOnTime }),
	"minCoolOff": secondsKey(func(k *control.Constants) *ticks.Seconds { return &k.MinCoolOffTime }),
	"minHeatOn":  secondsKey(func(k *control.Constants) *ticks.Seconds { return &k.MinHeatOnTime }),
	"minHeatOff": secondsKey(func(k *control.Constants) *ticks.Seconds { return &k.MinHeatOffTime }),
	"minSwitch":  secondsKey(func(k *control.Constants) *ticks.Seconds { return &k.MinSwitchTime }),
	"faultTicks": func(_ *control.Settings, k *control.Constants, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		k.FaultThreshold = uint32(n)
		return nil
	},

	"beerFastFilt":    filterKey(func(k *control.Constants) *uint8 { return &k.BeerFilter.Fast }),
	"beerSlowFilt":    filterKey(func(k *control.Constants) *uint8 { return &k.BeerFilter.Slow }),
	"beerSlopeFilt":   filterKey(func(k *control.Constants) *uint8 { return &k.BeerFilter.Slope }),
	"fridgeFastFilt":  filterKey(func(k *control.Constants) *uint8 { return &k.FridgeFilter.Fast }),
	"fridgeSlowFilt":  filterKey(func(k *control.Constants) *uint8 { return &k.FridgeFilter.Slow }),
	"fridgeSlopeFilt": filterKey(func(k *control.Constants) *uint8 { return &k.FridgeFilter.Slope }),
}

// applyPairs writes every pair into s and k. Pairs are applied in key
// order so errors are reported deterministically.
func applyPairs(s *control.Settings, k *control.Constants, pairs map[string]json.RawMessage) error {
	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := setters[key]
		if !ok {
			return fmt.Errorf("%w %q", ErrUnknownKey, key)
		}
		v, err := scalar(pairs[key])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
		if err := set(s, k, v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
		}
	}
	return nil
}

// scalar accepts a JSON string or number and returns its text.
func scalar(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}
