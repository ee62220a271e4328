/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gofdm/FDM"
	"github.com/notargets/gofdm/InputParameters"
	"github.com/notargets/gofdm/mesh"
	"github.com/notargets/gofdm/model_problems/Poisson"
	"github.com/notargets/gofdm/utils"
)

// PoissonCmd represents the poisson command
var PoissonCmd = &cobra.Command{
	Use:   "poisson",
	Short: "Solve -div(mu grad u) + c u = f on a box with FDM preconditioned CG",
	Long: `
Solves the manufactured problem u = prod sin(pi x_d) with homogeneous
Dirichlet conditions on a tensor product box mesh and reports the number of
preconditioned conjugate gradient iterations.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			ip  *InputParameters.PoissonParameters
		)
		fmt.Println("poisson called")
		inputFile, _ := cmd.Flags().GetString("inputConditionsFile")
		if ip, err = processPoissonInput(inputFile); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		if N := viper.GetInt("order"); N > 0 {
			ip.PolynomialOrder = N
		}
		if pcType := viper.GetString("fdm_type"); pcType != "" {
			if ip.FDM == nil {
				ip.FDM = make(map[string]string)
			}
			ip.FDM[FDM.OptionsPrefix+"type"] = pcType
		}
		ip.Print()
		switch viper.GetString("profile") {
		case "cpu":
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		case "mem":
			defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
		}
		if _, err = RunPoisson(ip, os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func processPoissonInput(fileName string) (ip *InputParameters.PoissonParameters, err error) {
	var data []byte
	if len(fileName) != 0 {
		if data, err = ioutil.ReadFile(fileName); err != nil {
			return
		}
	}
	ip = &InputParameters.PoissonParameters{}
	err = ip.Parse(data)
	return
}

func poissonMesh(ip *InputParameters.PoissonParameters) (*mesh.Mesh, error) {
	if len(ip.Coords) != 0 {
		return mesh.NewBoxMesh(ip.Coords...)
	}
	return mesh.NewUnitBoxMesh(ip.Cells...)
}

// RunPoisson solves the manufactured problem described by ip and writes a
// report to w.
func RunPoisson(ip *InputParameters.PoissonParameters, w io.Writer) (r Poisson.Result, err error) {
	var (
		m    *mesh.Mesh
		p    *Poisson.Poisson
		opts FDM.Options
		pc   *FDM.PC
		b    []float64
	)
	if opts, err = FDM.ParseOptions(ip.FDM); err != nil {
		return
	}
	if m, err = poissonMesh(ip); err != nil {
		return
	}
	if p, err = Poisson.NewPoisson(m, ip.PolynomialOrder, ip.Viscosity, ip.Reaction); err != nil {
		return
	}
	var (
		ndim  = float64(m.TDim)
		exact = func(x []float64) float64 {
			u := 1.
			for _, xd := range x {
				u *= math.Sin(math.Pi * xd)
			}
			return u
		}
		force = func(x []float64) float64 {
			return (ndim*math.Pi*math.Pi*ip.Viscosity + ip.Reaction) * exact(x)
		}
	)
	if b, err = p.RHS(force); err != nil {
		return
	}
	if pc, err = p.Preconditioner(opts); err != nil {
		return
	}
	pc.View(w)
	if r, err = p.Solve(b, pc, ip.Tolerance); err != nil {
		return
	}
	fmt.Fprintf(w, "Iterations = %d, Residual = %8.5e, Runtime = %v\n", r.Iterations, r.ResidualNorm, r.Runtime)
	fmt.Fprintf(w, "Max error = %8.5e\n", p.Error(r.X, exact))
	fmt.Fprintf(w, "%s\n", utils.GetMemUsage())
	return
}

func init() {
	rootCmd.AddCommand(PoissonCmd)
	PoissonCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- PolynomialOrder\n\t- Cells\n\t- FDM options")
	PoissonCmd.Flags().IntP("order", "N", 0, "polynomial degree, overrides the input file")
	PoissonCmd.Flags().StringP("type", "t", "", "FDM preconditioner type: affine or stencil")
	PoissonCmd.Flags().StringP("profile", "p", "", "write a cpu or mem profile of the run")
	for key, flag := range map[string]string{"order": "order", "fdm_type": "type", "profile": "profile"} {
		if err := viper.BindPFlag(key, PoissonCmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
