package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/porticus-lab/zplbox"
	"github.com/porticus-lab/zplbox/render"
)

// convertOpts holds the flags shared by html2zpl and pdf2zpl.
type convertOpts struct {
	output  string // label file, "-" for stdout
	printTo string // printer host[:port]
	image   string // write the rendered bitmap as PNG instead of a label
	dpi     int
}

func (o *convertOpts) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "-", "write the label to this file")
	cmd.Flags().StringVarP(&o.printTo, "print", "p", "", "send the label to a printer at host[:port]")
	cmd.Flags().StringVar(&o.image, "png", "", "write the rendered page as PNG to this file and skip encoding")
	cmd.Flags().IntVar(&o.dpi, "dpi", 0, "printer resolution in dots per inch (default from config)")
}

func (c *CLI) html2zplCommand() *cobra.Command {
	var opts convertOpts
	var width, height float64
	var mm bool

	cmd := &cobra.Command{
		Use:   "html2zpl <file|url>",
		Short: "Convert an HTML page into a ZPL label",
		Example: `  zplbox html2zpl label.html --width 288 --height 432 > label.zpl
  zplbox html2zpl https://example.com/label --width 100 --height 50 --mm --print 10.0.0.9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dpi := opts.dpi
			if dpi == 0 {
				dpi = c.Config.Render.HTMLDPI
			}
			pg := render.Page{WidthPts: width, HeightPts: height, DPI: dpi}
			if mm {
				pg = render.PageFromMillimeters(width, height, dpi)
			}
			if err := pg.Validate(); err != nil {
				return err
			}

			r, err := render.NewHTMLRenderer(c.renderOptions()...)
			if err != nil {
				return err
			}
			defer r.Close()
			return c.convert(cmd.Context(), args[0], r.For(&pg), &opts)
		},
	}
	opts.register(cmd)
	cmd.Flags().Float64Var(&width, "width", render.Label4x6.WidthPts, "label width in points")
	cmd.Flags().Float64Var(&height, "height", render.Label4x6.HeightPts, "label height in points")
	cmd.Flags().BoolVar(&mm, "mm", false, "interpret --width and --height as millimeters")
	return cmd
}

func (c *CLI) pdf2zplCommand() *cobra.Command {
	var opts convertOpts

	cmd := &cobra.Command{
		Use:   "pdf2zpl <file|url>",
		Short: "Convert the first page of a PDF into a ZPL label",
		Example: `  zplbox pdf2zpl shipping.pdf -o shipping.zpl
  zplbox pdf2zpl shipping.pdf --dpi 300 --print printer.local:9100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dpi := opts.dpi
			if dpi == 0 {
				dpi = c.Config.Render.PDFDPI
			}
			r, err := render.NewPDFRenderer(c.renderOptions()...)
			if err != nil {
				return err
			}
			return c.convert(cmd.Context(), args[0], r.For(dpi), &opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func (c *CLI) convert(ctx context.Context, arg string, r zplbox.Renderer, opts *convertOpts) error {
	spec, err := sourceSpec(arg)
	if err != nil {
		return err
	}
	p := c.newPipeline()

	if opts.image != "" {
		img, err := p.Render(ctx, spec, r)
		if err != nil {
			return err
		}
		f, err := os.Create(opts.image)
		if err != nil {
			return err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	req := zplbox.Request{Source: spec, Renderer: r}
	if opts.printTo != "" {
		ep, err := zplbox.ParseEndpointDefault(opts.printTo, c.Config.Printer.DefaultPort)
		if err != nil {
			return err
		}
		req.PrintTo = &ep
	}
	label, err := p.Run(ctx, req)
	if err != nil {
		return err
	}
	if req.PrintTo != nil {
		c.Logger.Info("label printed", zap.Stringer("printer", req.PrintTo), zap.Int("bytes", label.Len()))
		if opts.output == "-" {
			return nil
		}
	}
	return writeLabel(c.Out, opts.output, label)
}

func writeLabel(stdout io.Writer, path string, label *zplbox.Label) error {
	if path == "-" || path == "" {
		_, err := label.WriteTo(stdout)
		return err
	}
	return label.WriteToFile(path, 0o644)
}

// sourceSpec treats http(s) arguments as URLs and everything else as a
// local file to inline.
func sourceSpec(arg string) (zplbox.SourceSpec, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return zplbox.SourceSpec{URL: arg}, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return zplbox.SourceSpec{}, fmt.Errorf("reading %s: %w", arg, err)
	}
	return zplbox.SourceSpec{DataBase64: base64.StdEncoding.EncodeToString(data)}, nil
}
