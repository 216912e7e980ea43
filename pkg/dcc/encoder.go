package dcc

import "fmt"

// speedTable maps a linear speed step (0-28) to the C SSSS bits of the
// speed group instruction. The intermediate bit (0x10) interleaves the
// 14 base steps into 28, so consecutive entries alternate between the
// two half-step ranges.
var speedTable = [29]byte{
	0x00, 0x02, 0x12, 0x03, 0x13, //  0  1  2  3  4
	0x04, 0x14, 0x05, 0x15, 0x06, //  5  6  7  8  9
	0x16, 0x07, 0x17, 0x08, 0x18, // 10 11 12 13 14
	0x09, 0x19, 0x0A, 0x1A, 0x0B, // 15 16 17 18 19
	0x1B, 0x0C, 0x1C, 0x0D, 0x1D, // 20 21 22 23 24
	0x0E, 0x1E, 0x0F, 0x1F, //       25 26 27 28
}

// ClampSpeed bounds a signed speed request to the 28-step range.
// The sign carries the direction.
func ClampSpeed(speed int) int {
	if speed > SpeedStepMax {
		return SpeedStepMax
	}
	if speed < -SpeedStepMax {
		return -SpeedStepMax
	}
	return speed
}

// ValidLocomotiveAddress reports whether address can appear in a
// locomotive movement or function command. The broadcast address 0 is
// not valid here; only stop commands may use it.
func ValidLocomotiveAddress(address int) bool {
	return address > 0 && address <= LocomotiveAddressMax
}

// ValidStopAddress reports whether address can appear in a stop command.
func ValidStopAddress(address int) bool {
	return address >= BroadcastAddress && address <= LocomotiveAddressMax
}

// ValidAccessoryAddress reports whether address fits the 9-bit accessory
// address space.
func ValidAccessoryAddress(address int) bool {
	return address >= 0 && address <= AccessoryAddressMax
}

// SpeedInstruction encodes a clamped signed speed into a speed group
// instruction byte. Speed 0 encodes a normal stop with no direction bit.
func SpeedInstruction(speed int) byte {
	speed = ClampSpeed(speed)
	dir := byte(0)
	if speed > 0 {
		dir = DirectionForward
	}
	if speed < 0 {
		speed = -speed
	}
	return SpeedGroupBase + dir + (speedTable[speed] & SpeedBitsMask)
}

// StopInstruction encodes a stop. An emergency stop bypasses the
// decoder's deceleration curve and cuts power immediately.
func StopInstruction(emergency bool) byte {
	if emergency {
		return SpeedGroupBase + EmergencyStopBit
	}
	return SpeedGroupBase
}

// FunctionInstruction selects and encodes one of the three function
// group instructions from the caller-maintained 16-bit function mask.
// The index chooses the group; the instruction always carries the
// current state of every function in that group.
func FunctionInstruction(index int, mask uint16) (byte, error) {
	switch {
	case (index >= FunctionIndexMin && index <= 4) || index == HeadlightIndex:
		instruction := byte(FunctionGroupOne) + byte(mask&0x0F)
		if mask&(1<<(HeadlightIndex-1)) != 0 {
			instruction += HeadlightBit
		}
		return instruction, nil
	case index >= 5 && index <= 8:
		return FunctionGroupTwoS + byte((mask>>4)&0x0F), nil
	case index >= 9 && index <= FunctionIndexMax:
		return FunctionGroupTwo + byte((mask>>8)&0x0F), nil
	default:
		return 0, fmt.Errorf("invalid function index %d", index)
	}
}

// AccessoryInstruction encodes a basic accessory command as the two
// bytes of the accessory addressing scheme: the low byte carries the
// 6 low address bits, the high byte the 3 high address bits (at bits
// 4-6) plus the on/off value and the 4-bit device selector.
func AccessoryInstruction(address, device int, value bool) (low, high byte, err error) {
	if !ValidAccessoryAddress(address) {
		return 0, 0, fmt.Errorf("accessory address %d out of range", address)
	}
	valueBit := byte(0)
	if value {
		valueBit = AccessoryValueBit
	}
	low = AccessoryBase + byte(address&AccessoryLowAddressMask)
	high = AccessoryBase +
		byte((address&AccessoryHighAddressMask)>>AccessoryHighAddressShift) +
		valueBit + byte(device&AccessoryDeviceMask)
	return low, high, nil
}

// SendLine renders the outbound command line understood by the
// generator: decimal address and instruction byte, space separated.
func SendLine(address int, instruction byte) string {
	return fmt.Sprintf("send %d %d", address, instruction)
}

// PinLine renders the generator output pin configuration line.
func PinLine(a, b int) string {
	return fmt.Sprintf("pin %d %d", a, b)
}
