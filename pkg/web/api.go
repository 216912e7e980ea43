package web

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/trackworks/dcc-pilot/pkg/capture"
	"github.com/trackworks/dcc-pilot/pkg/fleet"
	"github.com/trackworks/dcc-pilot/pkg/logger"
	"github.com/trackworks/dcc-pilot/pkg/station"
)

// ChannelControl is the station surface the API drives
type ChannelControl interface {
	Move(address, speed int) bool
	Stop(address int, emergency bool) bool
	SetFunction(address int, instruction byte) bool
	SetAccessory(address, device int, value bool) bool
	ConfigurePins(a, b int)
	ExportConfig() (pinA, pinB int)
	Readiness() station.ReadinessState
	Alive() bool
}

// API handles the REST endpoints. A single change counter covers every
// registry and control change, so clients can poll conditionally: a
// request carrying known=<latest> gets 304 when nothing changed.
type API struct {
	station ChannelControl
	fleet   *fleet.Fleet
	trail   *capture.Trail
	hub     *WebSocketHub
	logger  *logger.Logger
	layout  string

	// Persist, when set, is called after every configuration change.
	Persist func()

	mu     sync.Mutex
	latest int64
}

// NewAPI creates a new API instance
func NewAPI(st ChannelControl, fl *fleet.Fleet, trail *capture.Trail, hub *WebSocketHub, layout string, log *logger.Logger) *API {
	return &API{
		station: st,
		fleet:   fl,
		trail:   trail,
		hub:     hub,
		logger:  log,
		layout:  layout,
		// The initial value is somewhat random so that clients can
		// detect a service restart.
		latest: (time.Now().Unix() & 0xffff) * 100,
	}
}

// Latest returns the current change counter
func (a *API) Latest() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}

// changed advances the change counter
func (a *API) changed() {
	a.mu.Lock()
	a.latest++
	a.mu.Unlock()
}

// same reports whether the client already knows the current state, and
// answers 304 when it does.
func (a *API) same(w http.ResponseWriter, r *http.Request) bool {
	known := r.URL.Query().Get("known")
	if known == "" {
		return false
	}
	value, err := strconv.ParseInt(known, 10, 64)
	if err != nil {
		return false
	}
	if value == a.Latest() {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

type trainsStatus struct {
	Layout   string                `json:"layout,omitempty"`
	Latest   int64                 `json:"latest"`
	Channel  string                `json:"channel"`
	Alive    bool                  `json:"alive"`
	Vehicles []fleet.VehicleStatus `json:"vehicles,omitempty"`
	Consists []fleet.ConsistStatus `json:"consists,omitempty"`
}

type statusResponse struct {
	Host      string       `json:"host"`
	Timestamp int64        `json:"timestamp"`
	Trains    trainsStatus `json:"trains"`
}

func (a *API) status() statusResponse {
	host, _ := os.Hostname()
	return statusResponse{
		Host:      host,
		Timestamp: time.Now().Unix(),
		Trains: trainsStatus{
			Layout:   a.layout,
			Latest:   a.Latest(),
			Channel:  a.station.Readiness().String(),
			Alive:    a.station.Alive(),
			Vehicles: a.fleet.Status(),
			Consists: a.fleet.Consists(),
		},
	}
}

func (a *API) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

// writeStatus answers with the full status document and pushes the same
// update to websocket clients.
func (a *API) writeStatus(w http.ResponseWriter) {
	status := a.status()
	a.hub.BroadcastFleetStatus(status.Trains)
	a.writeJSON(w, status)
}

// numeric reports whether an ID addresses the track directly
func numeric(id string) bool {
	return id != "" && id[0] >= '0' && id[0] <= '9'
}

// HandleStatus handles /dcc/fleet/status
func (a *API) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.same(w, r) {
		return
	}
	a.writeJSON(w, a.status())
}

// HandleMove handles /dcc/fleet/move. A numeric ID is a raw DCC
// address; a symbolic ID resolves through consists first, then the
// fleet.
func (a *API) HandleMove(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	speedPar := query.Get("speed")

	if id == "" {
		http.Error(w, "missing device ID", http.StatusNotFound)
		return
	}
	if speedPar == "" {
		http.Error(w, "missing speed value", http.StatusBadRequest)
		return
	}
	speed, err := strconv.Atoi(speedPar)
	if err != nil {
		http.Error(w, "invalid speed value", http.StatusBadRequest)
		return
	}

	if numeric(id) {
		address, _ := strconv.Atoi(id)
		if !a.station.Move(address, speed) {
			http.Error(w, "DCC failure", http.StatusInternalServerError)
			return
		}
	} else if !a.fleet.MoveTrain(id, speed) {
		http.Error(w, "invalid ID", http.StatusNotFound)
		return
	}
	a.changed()
	a.writeStatus(w)
}

// HandleStop handles /dcc/fleet/stop. Without an ID every vehicle on
// the track is stopped (DCC broadcast).
func (a *API) HandleStop(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	emergency := query.Get("urgent") != "" && query.Get("urgent") != "0"

	if id == "" {
		if !a.station.Stop(0, emergency) {
			http.Error(w, "DCC failure", http.StatusInternalServerError)
			return
		}
		a.fleet.Stopped()
	} else if numeric(id) {
		address, _ := strconv.Atoi(id)
		if !a.station.Stop(address, emergency) {
			http.Error(w, "DCC failure", http.StatusInternalServerError)
			return
		}
	} else if !a.fleet.StopTrain(id, emergency) {
		http.Error(w, "invalid ID", http.StatusNotFound)
		return
	}
	a.changed()
	a.writeStatus(w)
}

// HandleSet handles /dcc/fleet/set. A numeric ID takes a raw function
// instruction byte; a symbolic ID names a device on the vehicle model.
func (a *API) HandleSet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	device := query.Get("device")
	state := query.Get("state")

	if id == "" {
		http.Error(w, "missing vehicle ID", http.StatusNotFound)
		return
	}
	if state == "" {
		http.Error(w, "missing state value", http.StatusBadRequest)
		return
	}

	if numeric(id) {
		address, _ := strconv.Atoi(id)
		instruction, err := strconv.Atoi(state)
		if err != nil {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		if !a.station.SetFunction(address, byte(instruction)) {
			http.Error(w, "DCC failure", http.StatusInternalServerError)
			return
		}
	} else {
		if device == "" {
			http.Error(w, "missing device", http.StatusBadRequest)
			return
		}
		var value bool
		switch state {
		case "on":
			value = true
		case "off":
			value = false
		default:
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		if !a.fleet.Set(id, device, value) {
			http.Error(w, "invalid ID", http.StatusNotFound)
			return
		}
	}
	a.changed()
	a.writeStatus(w)
}

// HandleAccessory handles /dcc/accessory: switch one device of an
// accessory decoder (turnout, signal).
func (a *API) HandleAccessory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	adr := query.Get("adr")
	device := query.Get("device")
	state := query.Get("state")

	if adr == "" {
		http.Error(w, "missing accessory address", http.StatusNotFound)
		return
	}
	address, err := strconv.Atoi(adr)
	if err != nil {
		http.Error(w, "invalid accessory address", http.StatusBadRequest)
		return
	}
	deviceValue := 0
	if device != "" {
		if deviceValue, err = strconv.Atoi(device); err != nil {
			http.Error(w, "invalid device", http.StatusBadRequest)
			return
		}
	}
	var value bool
	switch state {
	case "on", "1":
		value = true
	case "off", "0", "":
		value = false
	default:
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	if !a.station.SetAccessory(address, deviceValue, value) {
		http.Error(w, "DCC failure", http.StatusInternalServerError)
		return
	}
	a.changed()
	a.writeStatus(w)
}

// HandleGpio handles /dcc/gpio: reassign the generator output pins
func (a *API) HandleGpio(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	aPar := query.Get("a")
	bPar := query.Get("b")

	if aPar == "" {
		http.Error(w, "missing pin A", http.StatusNotFound)
		return
	}
	pinA, err := strconv.Atoi(aPar)
	if err != nil {
		http.Error(w, "invalid pin A", http.StatusBadRequest)
		return
	}
	pinB := 0
	if bPar != "" {
		if pinB, err = strconv.Atoi(bPar); err != nil {
			http.Error(w, "invalid pin B", http.StatusBadRequest)
			return
		}
	}

	a.station.ConfigurePins(pinA, pinB)
	a.save(w)
}

// parseDevices decodes the devices parameter: '+'-separated list of
// name:index pairs, e.g. "lights:13+sound:1".
func parseDevices(devices string) []fleet.Function {
	if devices == "" {
		return nil
	}
	var functions []fleet.Function
	for _, item := range strings.Split(devices, "+") {
		name, indexPar, found := strings.Cut(item, ":")
		if !found || name == "" {
			continue
		}
		index, err := strconv.Atoi(indexPar)
		if err != nil {
			continue
		}
		functions = append(functions, fleet.Function{Name: name, Index: index})
	}
	return functions
}

// HandleAddModel handles /dcc/fleet/vehicle/model
func (a *API) HandleAddModel(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	model := query.Get("model")
	vtype := query.Get("type")

	if model == "" || vtype == "" {
		http.Error(w, "missing model name or type", http.StatusNotFound)
		return
	}
	if err := a.fleet.DeclareModel(model, vtype, parseDevices(query.Get("devices"))); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.save(w)
}

// HandleAddVehicle handles /dcc/fleet/vehicle/add
func (a *API) HandleAddVehicle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	adr := query.Get("adr")

	if id == "" || adr == "" {
		http.Error(w, "missing vehicle ID or address", http.StatusNotFound)
		return
	}
	address, err := strconv.Atoi(adr)
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	if err := a.fleet.AddVehicle(id, query.Get("model"), address); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.save(w)
}

// HandleDeleteVehicle handles /dcc/fleet/vehicle/delete: removes the
// named vehicle, or the named model when no vehicle matches.
func (a *API) HandleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	a.fleet.Delete(id)
	a.save(w)
}

// HandleAddConsist handles /dcc/fleet/consist/add
func (a *API) HandleAddConsist(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	id := query.Get("id")
	adr := query.Get("adr")

	if id == "" || adr == "" {
		http.Error(w, "missing consist ID or address", http.StatusNotFound)
		return
	}
	address, err := strconv.Atoi(adr)
	if err != nil {
		http.Error(w, "invalid address", http.StatusBadRequest)
		return
	}
	if err := a.fleet.AddConsist(id, address); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.save(w)
}

// HandleAssign handles /dcc/fleet/consist/assign
func (a *API) HandleAssign(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	loco := query.Get("loco")
	consist := query.Get("consist")
	mode := query.Get("mode")

	if loco == "" || consist == "" || mode == "" {
		http.Error(w, "missing consist information", http.StatusNotFound)
		return
	}
	if err := a.fleet.Assign(consist, loco, mode); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	a.save(w)
}

// HandleRemove handles /dcc/fleet/consist/remove
func (a *API) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	a.fleet.Remove(id)
	a.save(w)
}

// HandleDeleteConsist handles /dcc/fleet/consist/delete
func (a *API) HandleDeleteConsist(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	a.fleet.DeleteConsist(id)
	a.save(w)
}

type gpioConfig struct {
	A int `json:"a"`
	B int `json:"b"`
}

type trainsConfig struct {
	Layout   string                `json:"layout,omitempty"`
	Latest   int64                 `json:"latest"`
	Gpio     gpioConfig            `json:"gpio"`
	Models   []fleet.Model         `json:"models"`
	Vehicles []fleet.VehicleConfig `json:"vehicles"`
	Consists []fleet.ConsistConfig `json:"consists"`
}

type configResponse struct {
	Host      string       `json:"host"`
	Timestamp int64        `json:"timestamp"`
	Trains    trainsConfig `json:"trains"`
}

func (a *API) config() configResponse {
	host, _ := os.Hostname()
	pinA, pinB := a.station.ExportConfig()
	cfg := a.fleet.ExportConfig()
	return configResponse{
		Host:      host,
		Timestamp: time.Now().Unix(),
		Trains: trainsConfig{
			Layout:   a.layout,
			Latest:   a.Latest(),
			Gpio:     gpioConfig{A: pinA, B: pinB},
			Models:   cfg.Models,
			Vehicles: cfg.Vehicles,
			Consists: cfg.Consists,
		},
	}
}

// HandleConfig handles /dcc/fleet/config
func (a *API) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.same(w, r) {
		return
	}
	a.writeJSON(w, a.config())
}

// save records a configuration change, persists it and answers with
// the new configuration.
func (a *API) save(w http.ResponseWriter) {
	a.changed()
	if a.Persist != nil {
		a.Persist()
	}
	a.writeJSON(w, a.config())
}

// HandleCapture handles /dcc/capture: the recent diagnostic records
func (a *API) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	a.writeJSON(w, map[string]interface{}{
		"capture": a.trail.Recent(),
	})
}
