package power

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"evpoint/internal"
	"evpoint/ocpp"
	"evpoint/ocpp/smartcharging"
	"evpoint/types"
)

const featureName = "ChargingProfile"

// Options tune the request discipline for profile commands.
type Options struct {
	RequestTimeout       time.Duration
	MaxAttempts          int
	BackoffBase          time.Duration
	AssumeSuccessOnClose bool
}

func DefaultOptions() Options {
	return Options{
		RequestTimeout:       10 * time.Second,
		MaxAttempts:          3,
		BackoffBase:          time.Second,
		AssumeSuccessOnClose: true,
	}
}

type profileState struct {
	ProfileId int
	Limit     float64
	Unit      types.ChargingRateUnitType
	Assumed   bool
}

// ProfileController negotiates charging profiles with one station. It retries
// transient failures with exponential backoff, remembers the limit applied to
// each connector, and keeps unconfirmed limits pending so they can be asserted
// again on the next heartbeat.
type ProfileController struct {
	stationId string
	server    ocpp.RequestSender
	logger    internal.LogHandler
	options   Options
	mux       sync.Mutex
	applied   map[int]*profileState
	pending   map[int]*profileState
	sleep     func(time.Duration)
}

func NewProfileController(stationId string, server ocpp.RequestSender, logger internal.LogHandler, options Options) *ProfileController {
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}
	return &ProfileController{
		stationId: stationId,
		server:    server,
		logger:    logger,
		options:   options,
		applied:   make(map[int]*profileState),
		pending:   make(map[int]*profileState),
		sleep:     time.Sleep,
	}
}

// SetLimit imposes a power ceiling on a connector. A station rejection is
// final; timeouts and transport errors are retried up to the attempt budget.
// When the attempts are exhausted the desired limit stays pending and is
// retried on the next Reassert call.
func (c *ProfileController) SetLimit(connectorId, profileId int, limit float64, unit types.ChargingRateUnitType) error {
	desired := &profileState{ProfileId: profileId, Limit: limit, Unit: unit}
	c.mux.Lock()
	c.pending[connectorId] = desired
	c.mux.Unlock()

	request := smartcharging.NewSetChargingProfileRequest(connectorId, smartcharging.NewMaxPowerProfile(profileId, limit, unit))
	var lastErr error
	for attempt := 0; attempt < c.options.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(c.options.BackoffBase << (attempt - 1))
		}
		response, err := c.server.SendRequest(c.stationId, request, c.options.RequestTimeout)
		if err != nil {
			if c.options.AssumeSuccessOnClose && isAmbiguousClose(err) {
				c.logger.FeatureEvent(featureName, c.stationId, fmt.Sprintf("connection closed while setting limit on connector %d, assuming success", connectorId))
				desired.Assumed = true
				c.commit(connectorId, desired)
				return nil
			}
			lastErr = err
			c.logger.Warn(fmt.Sprintf("set limit attempt %d on %s: %v", attempt+1, c.stationId, err))
			continue
		}
		confirmation, ok := response.(*smartcharging.SetChargingProfileResponse)
		if !ok {
			lastErr = fmt.Errorf("unexpected response type %T", response)
			continue
		}
		if confirmation.Status != smartcharging.ChargingProfileStatusAccepted {
			c.mux.Lock()
			delete(c.pending, connectorId)
			c.mux.Unlock()
			return fmt.Errorf("station %s refused profile: %s", c.stationId, confirmation.Status)
		}
		c.commit(connectorId, desired)
		c.logger.FeatureEvent(featureName, c.stationId, fmt.Sprintf("connector %d limited to %v%s", connectorId, limit, unit))
		return nil
	}
	return fmt.Errorf("set limit on %s, connector %d: %w", c.stationId, connectorId, lastErr)
}

// ClearLimit removes the profile from a connector. A single attempt; a stale
// limit is harmless and the caller decides whether to try again.
func (c *ProfileController) ClearLimit(connectorId, profileId int) error {
	request := smartcharging.NewClearChargingProfileRequest(connectorId, profileId)
	response, err := c.server.SendRequest(c.stationId, request, c.options.RequestTimeout)
	if err != nil {
		if c.options.AssumeSuccessOnClose && isAmbiguousClose(err) {
			c.forget(connectorId)
			return nil
		}
		return fmt.Errorf("clear limit on %s: %w", c.stationId, err)
	}
	confirmation, ok := response.(*smartcharging.ClearChargingProfileResponse)
	if !ok {
		return fmt.Errorf("unexpected response type %T", response)
	}
	if confirmation.Status != smartcharging.ClearChargingProfileStatusAccepted {
		return fmt.Errorf("station %s did not clear profile: %s", c.stationId, confirmation.Status)
	}
	c.forget(connectorId)
	c.logger.FeatureEvent(featureName, c.stationId, fmt.Sprintf("connector %d limit cleared", connectorId))
	return nil
}

// ApplyRemote validates a profile the station pushed to the server. An
// accepted profile becomes the connector's current limit.
func (c *ProfileController) ApplyRemote(connectorId int, profile *types.ChargingProfile) smartcharging.ChargingProfileStatus {
	if profile == nil || profile.ChargingSchedule == nil || len(profile.ChargingSchedule.ChargingSchedulePeriod) == 0 {
		return smartcharging.ChargingProfileStatusRejected
	}
	schedule := profile.ChargingSchedule
	c.commit(connectorId, &profileState{
		ProfileId: profile.ChargingProfileId,
		Limit:     schedule.ChargingSchedulePeriod[0].Limit,
		Unit:      schedule.ChargingRateUnit,
	})
	return smartcharging.ChargingProfileStatusAccepted
}

// CurrentLimit returns the limit applied to the connector, nil when none.
func (c *ProfileController) CurrentLimit(connectorId int) *float64 {
	c.mux.Lock()
	defer c.mux.Unlock()
	state, ok := c.applied[connectorId]
	if !ok {
		return nil
	}
	limit := state.Limit
	return &limit
}

// Reassert retries pending limits that were never confirmed. Called on
// heartbeat so a station that missed a command converges eventually.
func (c *ProfileController) Reassert() {
	c.mux.Lock()
	queue := make(map[int]*profileState, len(c.pending))
	for connectorId, state := range c.pending {
		queue[connectorId] = state
	}
	c.mux.Unlock()
	for connectorId, state := range queue {
		go func(connectorId int, state *profileState) {
			err := c.SetLimit(connectorId, state.ProfileId, state.Limit, state.Unit)
			if err != nil {
				c.logger.Warn(fmt.Sprintf("reassert limit on %s: %v", c.stationId, err))
			}
		}(connectorId, state)
	}
}

func (c *ProfileController) commit(connectorId int, state *profileState) {
	c.mux.Lock()
	c.applied[connectorId] = state
	delete(c.pending, connectorId)
	c.mux.Unlock()
}

func (c *ProfileController) forget(connectorId int) {
	c.mux.Lock()
	delete(c.applied, connectorId)
	delete(c.pending, connectorId)
	c.mux.Unlock()
}

// isAmbiguousClose reports whether the error means the peer went away in a
// manner that does not prove the request was lost.
func isAmbiguousClose(err error) bool {
	if errors.Is(err, ocpp.ErrRequestTimeout) {
		return false
	}
	if errors.Is(err, ocpp.ErrConnectionClosed) {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
