// Package latex2img replaces math in Markdown documents with rendered images.
//
// # Quick Start
//
// Create a processor and run it on a document:
//
//	p, err := latex2img.NewProcessor()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	doc, err := p.Process(ctx, "notes.md")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rep := doc.Report()
//	fmt.Printf("%d found, %d rendered, %d failed\n", rep.Found, rep.Succeeded, rep.Failed)
//
// A span such as $$E = mc^2$$ becomes an image reference followed by a
// fenced copy of the source:
//
//	![LaTeX Image](assets/latex_E___mc_2_1a2b3c4d.png)
//
//	```latex
//	E = mc^2
//	```
//
// # Pipeline
//
// Each document goes through these stages:
//
//  1. Extraction: one left-to-right pass over the text. Display math ($$…$$)
//     and escaped brackets (\[…\]) are on by default; plain brackets ([…]) are
//     opt-in because they also match ordinary prose and link text.
//  2. Naming: each distinct content gets a deterministic filename built from
//     a readable prefix of the content and its BLAKE3 fingerprint.
//  3. Rendering: latex then dvipng, each call in its own scratch directory,
//     bounded by a timeout. Existing images are reused unless WithForce.
//  4. Rewriting: successful spans are replaced; failed spans stay verbatim and
//     are reported in the Document.
//  5. Write back: only if at least one block succeeded and the text changed.
//
// # Configuration
//
// Use functional options to customize the processor:
//
//	p, err := latex2img.NewProcessor(
//	    latex2img.WithGrammars("display", "escaped-bracket", "bracket"),
//	    latex2img.WithAssetsDir("docs/assets"),
//	    latex2img.WithPolicy(latex2img.PolicyFirst),
//	    latex2img.WithWorkers(4),
//	)
//
// # Toolchain Requirements
//
// Rendering needs latex and dvipng on PATH (TeX Live, MacTeX or MiKTeX), with
// the standalone and amsmath packages installed. Run "latex2img doctor" to
// check an installation. Tests and embedders can substitute WithRenderer.
package latex2img
