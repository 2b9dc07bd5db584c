package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/voxmask/voxmask/go/pkg/device"
)

var inspectVectors bool

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <batch.vmb>",
	Short: "Show the contents of an embedding batch file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	b, err := readBatch(cmd.Context(), args[0], device.Default())
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(args[0]))
	fmt.Printf("  %s %s\n", labelStyle.Render("vec_type:"), b.VecType())
	fmt.Printf("  %s %s\n", labelStyle.Render("level:   "), b.Level())
	fmt.Printf("  %s %d\n", labelStyle.Render("vectors: "), b.Len())
	fmt.Printf("  %s %d\n", labelStyle.Render("dims:    "), b.Dim())
	fmt.Println()

	speakers := b.Speakers()
	genders := b.Genders()
	i := 0
	for id, vec := range b.All() {
		line := fmt.Sprintf("  %-24s speaker=%-16s gender=%s", id, speakers[i], genders[i])
		if inspectVectors {
			line += "  " + dimStyle.Render(previewVector(vec, 6))
		}
		fmt.Println(line)
		i++
	}
	return nil
}

// previewVector formats the first n coordinates of a vector.
func previewVector(vec []float32, n int) string {
	if len(vec) < n {
		n = len(vec)
	}
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf("%.4g", vec[i])
	}
	s := "[" + strings.Join(parts, " ")
	if len(vec) > n {
		s += " …"
	}
	return s + "]"
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectVectors, "vectors", false, "include a preview of each vector")
	rootCmd.AddCommand(inspectCmd)
}
