package robot

import (
	"regexp"
	"strconv"
)

// numregLine matches one line of the controller's NUMREG.VA listing, e.g.
// "  [3] = 1  'READY'" or "[4] = 3995.5".
var numregLine = regexp.MustCompile(`(?m)^[ \t]*\[(\d+)\][ \t]*=[ \t]*([-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?)`)

// ParseRegisters extracts register values from a NUMREG.VA listing. Lines
// that do not parse are ignored, so a register absent from the result reads
// as 0.
func ParseRegisters(text string) map[int]float64 {
	out := make(map[int]float64)
	for _, m := range numregLine.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out[idx] = v
	}
	return out
}

// StateFrom builds a State from parsed register values. Missing registers
// default to 0.
func StateFrom(values map[int]float64, regs Registers) State {
	return State{
		Ready:    int(values[regs.Ready]),
		Program:  int(values[regs.Program]),
		Variant:  int(values[regs.Variant]),
		HeightMm: values[regs.Height],
	}
}
