package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type PoissonParameters struct {
	Title           string      `yaml:"Title"`
	PolynomialOrder int         `yaml:"PolynomialOrder"`
	Cells           []int       `yaml:"Cells"`  // Cells per axis of the unit box
	Coords          [][]float64 `yaml:"Coords"` // Vertex coordinates per axis, replaces Cells
	Viscosity       float64     `yaml:"Viscosity"`
	Reaction        float64     `yaml:"Reaction"`
	Tolerance       float64     `yaml:"Tolerance"`
	// FDM holds the preconditioner options, keyed as "fdm_type", "fdm_ksp_type", ...
	FDM map[string]string `yaml:"FDM"`
}

func (ip *PoissonParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	ip.defaults()
	return ip.Validate()
}

func (ip *PoissonParameters) defaults() {
	if ip.Viscosity == 0 {
		ip.Viscosity = 1
	}
	if ip.Tolerance == 0 {
		ip.Tolerance = 1.e-8
	}
	if ip.PolynomialOrder == 0 {
		ip.PolynomialOrder = 4
	}
	if len(ip.Cells) == 0 && len(ip.Coords) == 0 {
		ip.Cells = []int{3, 3}
	}
}

func (ip *PoissonParameters) Validate() error {
	switch {
	case ip.PolynomialOrder < 1:
		return fmt.Errorf("PolynomialOrder must be at least 1, have %d", ip.PolynomialOrder)
	case ip.Viscosity <= 0:
		return fmt.Errorf("Viscosity must be positive, have %g", ip.Viscosity)
	case ip.Reaction < 0:
		return fmt.Errorf("Reaction must be non negative, have %g", ip.Reaction)
	case ip.Tolerance <= 0 || ip.Tolerance >= 1:
		return fmt.Errorf("Tolerance must lie in (0,1), have %g", ip.Tolerance)
	}
	ndim := len(ip.Cells)
	if len(ip.Coords) != 0 {
		ndim = len(ip.Coords)
	}
	if ndim < 1 || ndim > 3 {
		return fmt.Errorf("mesh must have 1 to 3 axes, have %d", ndim)
	}
	return nil
}

func (ip *PoissonParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%d]\t\t\t\t= Polynomial Order\n", ip.PolynomialOrder)
	if len(ip.Coords) != 0 {
		for d, x := range ip.Coords {
			fmt.Printf("%v\t= Coords[%d]\n", x, d)
		}
	} else {
		fmt.Printf("%v\t\t\t= Cells\n", ip.Cells)
	}
	fmt.Printf("%8.5f\t\t= Viscosity\n", ip.Viscosity)
	fmt.Printf("%8.5f\t\t= Reaction\n", ip.Reaction)
	fmt.Printf("%8.2e\t\t= Tolerance\n", ip.Tolerance)
	keys := make([]string, len(ip.FDM))
	i := 0
	for k := range ip.FDM {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("FDM[%s] = %v\n", key, ip.FDM[key])
	}
}
