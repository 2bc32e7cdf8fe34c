package power

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"evpoint/internal"
	"evpoint/types"
)

const dynamicProfileId = 900001

// LoadOptions bound the simulated grid capacity walk.
type LoadOptions struct {
	ConnectorId int
	MinPower    float64
	MaxPower    float64
	Step        float64
	Interval    time.Duration
}

// DynamicLoadController drives a station's limit with a random walk inside the
// configured band, committing a new value only after the station confirmed it.
type DynamicLoadController struct {
	stationId string
	profiles  *ProfileController
	logger    internal.LogHandler
	options   LoadOptions
	current   float64
	rnd       *rand.Rand
}

func NewDynamicLoadController(stationId string, profiles *ProfileController, logger internal.LogHandler, options LoadOptions) *DynamicLoadController {
	return &DynamicLoadController{
		stationId: stationId,
		profiles:  profiles,
		logger:    logger,
		options:   options,
		current:   options.MaxPower,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks until the context is cancelled, usually when the station's
// session ends.
func (d *DynamicLoadController) Run(ctx context.Context) {
	ticker := time.NewTicker(d.options.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.step()
		}
	}
}

func (d *DynamicLoadController) step() {
	next := d.propose()
	err := d.profiles.SetLimit(d.options.ConnectorId, dynamicProfileId, next, types.ChargingRateUnitWatts)
	if err != nil {
		// keep the last confirmed value, the next tick tries again
		d.logger.Warn(fmt.Sprintf("dynamic load on %s: %v", d.stationId, err))
		return
	}
	d.current = next
}

// propose picks the next limit, one step up or down, clamped to the band.
func (d *DynamicLoadController) propose() float64 {
	next := d.current + d.options.Step
	if d.rnd.Intn(2) == 0 {
		next = d.current - d.options.Step
	}
	if next < d.options.MinPower {
		next = d.options.MinPower
	}
	if next > d.options.MaxPower {
		next = d.options.MaxPower
	}
	return next
}
