// Package zplbox converts documents into ZPL II labels for thermal printers.
//
// A conversion runs four stages:
//
//   - resolve the document, given as an http(s) URL or inline base64 data
//   - render it to a bitmap at printer resolution (see the render package)
//   - reduce the bitmap to one bit per dot with Floyd-Steinberg dithering
//   - encode the bits as a compressed ^GFA graphic field
//
// and optionally sends the label to a printer's raw TCP port.
//
// # Converting
//
// A [Pipeline] drives the stages. Renderers come from the render package:
//
//	html, err := render.NewHTMLRenderer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer html.Close()
//
//	p := zplbox.NewPipeline(zplbox.WithLogger(logger))
//	label, err := p.Run(ctx, zplbox.Request{
//	    Source:   zplbox.SourceSpec{URL: "https://example.com/label"},
//	    Renderer: html.For(&render.Label4x6),
//	})
//
// Set [Request.PrintTo] to deliver the label as well:
//
//	ep, err := zplbox.ParseEndpoint("10.0.0.9") // port defaults to 9100
//	label, err := p.Run(ctx, zplbox.Request{Source: src, Renderer: r, PrintTo: &ep})
//
// Inline documents are written to a temporary file for the renderer and
// removed once rendering finishes, whether it succeeded, failed, was
// canceled or panicked.
//
// # Encoding
//
// [ToMonochrome] and [Encode] can be used on their own:
//
//	raster, err := zplbox.ToMonochrome(img)
//	label, err := zplbox.Encode(raster)
//	label.WriteToFile("label.zpl", 0o644)
//
// [DecodeLabel] reverses [Encode]; the resulting [Raster] is an
// [image.Image] and can be written as PNG.
//
// # Errors
//
// Failures are [*Error] values carrying a [Kind]:
//
//	if zplbox.IsKind(err, zplbox.KindDeliveryTimeout) {
//	    // printer unreachable in time
//	}
package zplbox
