package cli

import (
	"fmt"
	"image/png"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/porticus-lab/zplbox"
)

func (c *CLI) inspectCommand() *cobra.Command {
	var pngPath string

	cmd := &cobra.Command{
		Use:   "inspect <label.zpl>",
		Short: "Decode a ZPL label and report its graphic field",
		Long: `Decode the first ^GFA graphic field of a label and print its geometry.
Use "-" to read the label from stdin. With --png the decoded bitmap is written
as an image for visual checks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			r, err := zplbox.DecodeLabel(data)
			if err != nil {
				return err
			}
			black := r.BlackCount()
			fmt.Fprintf(c.Out, "width:         %d dots\n", r.Width)
			fmt.Fprintf(c.Out, "height:        %d dots\n", r.Height)
			fmt.Fprintf(c.Out, "bytes per row: %d\n", r.Stride)
			fmt.Fprintf(c.Out, "total bytes:   %d\n", r.Stride*r.Height)
			fmt.Fprintf(c.Out, "label size:    %d bytes\n", len(data))
			fmt.Fprintf(c.Out, "black dots:    %d (%.1f%%)\n", black, 100*float64(black)/float64(r.Width*r.Height))

			if pngPath == "" {
				return nil
			}
			f, err := os.Create(pngPath)
			if err != nil {
				return err
			}
			if err := png.Encode(f, r); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write the decoded bitmap to this PNG file")
	return cmd
}
