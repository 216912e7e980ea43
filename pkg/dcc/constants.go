package dcc

// Instruction group bases (baseline DCC packet, CCC bits pre-shifted)
const (
	SpeedGroupBase    = 0x40 // CCC=01x: speed and direction
	FunctionGroupOne  = 0x80 // CCC=100: FL, F1-F4
	FunctionGroupTwoS = 0xB0 // CCC=101, S=1: F5-F8
	FunctionGroupTwo  = 0xA0 // CCC=101, S=0: F9-F12
	AccessoryBase     = 0x80 // Basic accessory packet bytes both carry bit 7
)

// Speed group bit layout
const (
	DirectionForward = 0x20 // Direction bit: set when moving forward
	SpeedBitsMask    = 0x1F // C SSSS: intermediate bit plus 4 speed bits
	EmergencyStopBit = 0x01 // Speed 0 with this bit set cuts power immediately
)

// Function group bit layout
const (
	HeadlightBit     = 0x10 // FL bit within group one
	HeadlightIndex   = 13   // Function index reserved for the headlight (FL)
	FunctionIndexMin = 1
	FunctionIndexMax = 12
)

// Address ranges: locomotives use 7-bit addresses, accessories 9-bit.
// Locomotive address 0 is the broadcast address, valid for stop only.
const (
	LocomotiveAddressMax = 127
	AccessoryAddressMax  = 511
	BroadcastAddress     = 0
)

// Speed steps: 28-step mode plus stop
const (
	SpeedStepMax = 28
)

// Accessory byte layout: 9-bit address split into a 6-bit low field
// (first byte) and a 3-bit high field (second byte, bits 4-6).
const (
	AccessoryLowAddressMask   = 0x3F
	AccessoryHighAddressMask  = 0x1C0
	AccessoryHighAddressShift = 2
	AccessoryValueBit         = 0x08
	AccessoryDeviceMask       = 0x0F
)
