package fleet

import (
	"fmt"
	"sort"

	"github.com/trackworks/dcc-pilot/pkg/dcc"
)

// Assignment modes for a vehicle within a consist
const (
	ModeForward = "f" // pulls forward when the train moves forward
	ModeReverse = "r" // pushes in reverse when the train moves forward
	ModeIdle    = "i" // provides no traction power
	ModeDummy   = "d" // has no DCC decoder at all
)

// consist is a list of vehicles linked together into one train
type consist struct {
	id      string
	address int
	members map[string]string // vehicle ID -> mode
}

// ConsistConfig is one consist's persistent configuration
type ConsistConfig struct {
	ID      string          `json:"id"`
	Address int             `json:"address"`
	Members []ConsistMember `json:"members"`
}

// ConsistMember records one vehicle's assignment within a consist
type ConsistMember struct {
	Vehicle string `json:"vehicle"`
	Mode    string `json:"mode"`
}

func validMode(mode string) bool {
	switch mode {
	case ModeForward, ModeReverse, ModeIdle, ModeDummy:
		return true
	}
	return false
}

// AddConsist declares a new empty consist. The address is the DCC
// consist address shared by its locomotives. A consist name must not
// collide with a vehicle ID; re-adding updates the address.
func (f *Fleet) AddConsist(id string, address int) error {
	if id == "" {
		return fmt.Errorf("consist ID is required")
	}
	if !dcc.ValidLocomotiveAddress(address) {
		return fmt.Errorf("invalid consist address %d", address)
	}

	f.mu.Lock()
	if _, taken := f.vehicles[id]; taken {
		f.mu.Unlock()
		return fmt.Errorf("%s already names a vehicle", id)
	}
	if existing, ok := f.consists[id]; ok {
		existing.address = address
	} else {
		f.consists[id] = &consist{
			id:      id,
			address: address,
			members: make(map[string]string),
		}
	}
	f.bump()
	f.mu.Unlock()

	f.log.Event("CONSIST", id, "CREATED", fmt.Sprintf("ADDRESS %d", address))
	return nil
}

// DeleteConsist removes a consist, releasing all its vehicles
func (f *Fleet) DeleteConsist(id string) bool {
	f.mu.Lock()
	if _, ok := f.consists[id]; !ok {
		f.mu.Unlock()
		return false
	}
	delete(f.consists, id)
	f.bump()
	f.mu.Unlock()

	f.log.Event("CONSIST", id, "DELETED", "")
	return true
}

// Assign places a vehicle in a consist. A vehicle belongs to at most
// one consist; reassigning within the same consist updates its mode.
func (f *Fleet) Assign(consistID, vehicleID, mode string) error {
	if !validMode(mode) {
		return fmt.Errorf("invalid assignment mode %q", mode)
	}

	f.mu.Lock()
	c, ok := f.consists[consistID]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("no consist named %s", consistID)
	}
	if _, ok := f.vehicles[vehicleID]; !ok {
		f.mu.Unlock()
		return fmt.Errorf("no vehicle named %s", vehicleID)
	}
	if other := f.consistOfLocked(vehicleID); other != nil && other != c {
		f.mu.Unlock()
		return fmt.Errorf("%s is already assigned to %s", vehicleID, other.id)
	}
	c.members[vehicleID] = mode
	f.bump()
	f.mu.Unlock()

	f.log.Event("CONSIST", consistID, "ASSIGNED", fmt.Sprintf("%s MODE %s", vehicleID, mode))
	return nil
}

// Remove takes a vehicle out of its consist, if any. A consist is
// deleted when its last vehicle has been removed.
func (f *Fleet) Remove(vehicleID string) bool {
	f.mu.Lock()
	removed := f.removeMemberLocked(vehicleID)
	if removed {
		f.bump()
	}
	f.mu.Unlock()

	if removed {
		f.log.Event("CONSIST", vehicleID, "REMOVED", "")
	}
	return removed
}

// removeMemberLocked drops a vehicle from its consist and deletes the
// consist when it empties. Caller holds f.mu.
func (f *Fleet) removeMemberLocked(vehicleID string) bool {
	c := f.consistOfLocked(vehicleID)
	if c == nil {
		return false
	}
	delete(c.members, vehicleID)
	if len(c.members) == 0 {
		delete(f.consists, c.id)
	}
	return true
}

// consistOfLocked finds the consist a vehicle belongs to. Caller holds f.mu.
func (f *Fleet) consistOfLocked(vehicleID string) *consist {
	for _, c := range f.consists {
		if _, ok := c.members[vehicleID]; ok {
			return c
		}
	}
	return nil
}

// ConsistOf returns the name of the consist a vehicle belongs to
func (f *Fleet) ConsistOf(vehicleID string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if c := f.consistOfLocked(vehicleID); c != nil {
		return c.id, true
	}
	return "", false
}

// MoveTrain moves a whole train. The ID may name a consist, or a
// vehicle: a vehicle that belongs to a consist moves its whole consist,
// a free vehicle moves alone. Returns false when the ID is unknown.
func (f *Fleet) MoveTrain(id string, speed int) bool {
	f.mu.Lock()
	c, ok := f.consists[id]
	if !ok {
		if _, ok := f.vehicles[id]; !ok {
			f.mu.Unlock()
			return false
		}
		c = f.consistOfLocked(id)
	}
	if c == nil {
		f.mu.Unlock()
		return f.Move(id, speed)
	}
	speed = dcc.ClampSpeed(speed)
	orders := f.consistOrdersLocked(c, speed)
	trainID := c.id
	f.mu.Unlock()

	switch {
	case speed > 0:
		f.log.Event("CONSIST", trainID, "FORWARD", fmt.Sprintf("AT SPEED %d", speed))
	case speed < 0:
		f.log.Event("CONSIST", trainID, "REVERSE", fmt.Sprintf("AT SPEED %d", -speed))
	default:
		f.log.Event("CONSIST", trainID, "STOP", "")
	}
	ok = true
	for _, order := range orders {
		if !f.station.Move(order.address, order.speed) {
			ok = false
		}
	}
	return ok
}

// StopTrain stops a whole train, resolved like MoveTrain
func (f *Fleet) StopTrain(id string, emergency bool) bool {
	f.mu.Lock()
	c, ok := f.consists[id]
	if !ok {
		if _, ok := f.vehicles[id]; !ok {
			f.mu.Unlock()
			return false
		}
		c = f.consistOfLocked(id)
	}
	if c == nil {
		f.mu.Unlock()
		return f.Stop(id, emergency)
	}

	var addresses []int
	for vehicleID := range c.members {
		if v, ok := f.vehicles[vehicleID]; ok {
			v.speed = 0
			addresses = append(addresses, v.address)
		}
	}
	sort.Ints(addresses)
	trainID := c.id
	f.bump()
	f.mu.Unlock()

	details := "BREAK"
	if emergency {
		details = "EMERGENCY BREAK"
	}
	f.log.Event("CONSIST", trainID, "STOP", details)
	ok = true
	for _, address := range addresses {
		if !f.station.Stop(address, emergency) {
			ok = false
		}
	}
	return ok
}

type moveOrder struct {
	address int
	speed   int
}

// consistOrdersLocked plans the per-vehicle movement commands for one
// consist: forward units get the train speed, reverse units the negated
// speed, idle and dummy units get none. Caller holds f.mu.
func (f *Fleet) consistOrdersLocked(c *consist, speed int) []moveOrder {
	var orders []moveOrder
	for vehicleID, mode := range c.members {
		v, ok := f.vehicles[vehicleID]
		if !ok {
			continue
		}
		switch mode {
		case ModeForward:
			v.speed = speed
			orders = append(orders, moveOrder{v.address, speed})
		case ModeReverse:
			v.speed = -speed
			orders = append(orders, moveOrder{v.address, -speed})
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].address < orders[j].address })
	f.bump()
	return orders
}

// ConsistStatus is one consist's state for the status API
type ConsistStatus struct {
	ID      string          `json:"id"`
	Address int             `json:"address"`
	Members []ConsistMember `json:"members"`
}

// Consists returns every consist and its members, sorted by ID
func (f *Fleet) Consists() []ConsistStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]ConsistStatus, 0, len(f.consists))
	for _, c := range f.consists {
		cfg := c.exportLocked()
		out = append(out, ConsistStatus{ID: cfg.ID, Address: cfg.Address, Members: cfg.Members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// exportLocked snapshots one consist. Caller holds f.mu.
func (c *consist) exportLocked() ConsistConfig {
	cfg := ConsistConfig{
		ID:      c.id,
		Address: c.address,
		Members: make([]ConsistMember, 0, len(c.members)),
	}
	for vehicleID, mode := range c.members {
		cfg.Members = append(cfg.Members, ConsistMember{Vehicle: vehicleID, Mode: mode})
	}
	sort.Slice(cfg.Members, func(i, j int) bool {
		return cfg.Members[i].Vehicle < cfg.Members[j].Vehicle
	})
	return cfg
}

// loadConsistLocked rebuilds one consist from saved configuration,
// dropping members that no longer exist. Caller holds f.mu.
func (f *Fleet) loadConsistLocked(cfg ConsistConfig) {
	if cfg.ID == "" || !dcc.ValidLocomotiveAddress(cfg.Address) {
		return
	}
	if _, taken := f.vehicles[cfg.ID]; taken {
		return
	}
	c := &consist{
		id:      cfg.ID,
		address: cfg.Address,
		members: make(map[string]string),
	}
	for _, member := range cfg.Members {
		if !validMode(member.Mode) {
			continue
		}
		if _, ok := f.vehicles[member.Vehicle]; !ok {
			continue
		}
		if f.consistOfLocked(member.Vehicle) != nil {
			continue
		}
		c.members[member.Vehicle] = member.Mode
	}
	if len(c.members) > 0 || len(cfg.Members) == 0 {
		f.consists[cfg.ID] = c
	}
}
