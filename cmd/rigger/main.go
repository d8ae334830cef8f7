package main

import (
	"context"
	"flag"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"

	"github.com/wrathskeller/rigger"
	"github.com/wrathskeller/rigger/internal/config"
	"github.com/wrathskeller/rigger/internal/utils"
	"github.com/wrathskeller/rigger/pkg/body"
	"github.com/wrathskeller/rigger/pkg/bundle"
	"github.com/wrathskeller/rigger/pkg/client"
	"github.com/wrathskeller/rigger/pkg/detection"
	"github.com/wrathskeller/rigger/pkg/llamacpp"
	"github.com/wrathskeller/rigger/pkg/ollama"
	"github.com/wrathskeller/rigger/pkg/processing"
	"github.com/wrathskeller/rigger/pkg/source"
	"github.com/wrathskeller/rigger/pkg/types"
)

func main() {
	var in, posePath, segPath, cfgPath, saveCfg string
	var outDir, backend, url, model, policy, format string
	var refWidth float64
	var overlay, dir, resample bool

	flag.StringVar(&in, "in", "", "input photo path or URL (jpg/png/webp)")
	flag.StringVar(&posePath, "pose", "", "pose JSON (default: <photo>.pose.json next to the photo)")
	flag.StringVar(&segPath, "seg", "", "segmentation JSON or label PNG (default: <photo>.segmentation.json or .png)")
	flag.StringVar(&cfgPath, "config", "", "config file (default: "+config.GetConfigPath()+" if present)")
	flag.StringVar(&saveCfg, "save-config", "", "write the effective config to this path and exit")

	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&backend, "backend", "", "pose source: file, ollama or llamacpp")
	flag.StringVar(&url, "url", "", "vision server URL")
	flag.StringVar(&model, "model", "", "vision model name")
	flag.StringVar(&policy, "policy", "", "missing landmark policy: abort|skip|zero")
	flag.StringVar(&format, "format", "", "cutout format: png|webp")
	flag.Float64Var(&refWidth, "refwidth", 0, "reference frame width for x recentering (0 = photo width)")

	flag.BoolVar(&overlay, "overlay", false, "also write a pose overlay image")
	flag.BoolVar(&dir, "dir", false, "write loose files instead of a zip archive")
	flag.BoolVar(&resample, "resample", false, "resample a segmentation that does not match the photo size")

	flag.Parse()

	cfg := loadConfig(cfgPath)

	// explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.OutputDir = outDir
		case "backend":
			cfg.Pose.Backend = backend
		case "url":
			cfg.Pose.URL = url
		case "model":
			cfg.Pose.Model = model
		case "policy":
			cfg.Synthesis.MissingPolicy = policy
		case "format":
			cfg.Output.ImageFormat = format
		case "refwidth":
			cfg.Synthesis.ReferenceWidth = refWidth
		case "overlay":
			cfg.Output.Overlay = overlay
		case "resample":
			cfg.Cutout.Resample = resample
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if saveCfg != "" {
		if err := cfg.SaveToFile(saveCfg); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", saveCfg)
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in photo.jpg|URL [-pose pose.json] [-seg seg.json|seg.png] [-backend file|ollama|llamacpp] [-policy abort|skip|zero] [-out outdir] [-format png|webp] [-overlay]", filepath.Base(os.Args[0]))
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatal(err)
	}

	rcfg := rigger.DefaultConfig()
	rcfg.Synthesis = cfg.SpineOptions()
	rcfg.Cutout = cfg.CutoutOptions()
	rcfg.Timeout = cfg.Timeout()
	r, err := rigger.NewWithConfig(rcfg)
	if err != nil {
		log.Fatalf("Failed to initialise rigger: %v", err)
	}

	processor := processing.NewProcessor()
	img, err := loadPhoto(r, processor, in)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("loaded %s (%dx%d)", in, img.Bounds().Dx(), img.Bounds().Dy())

	poses := poseSource(cfg, in, posePath)
	segmenter := source.NewSegmentationFile(resolveSibling(in, segPath, ".segmentation.json", ".segmentation.png"))

	bar := pb.StartNew(len(body.Groups()))
	character, err := r.Rig(context.Background(), img, poses, segmenter, func(body.PartGroupID) {
		bar.Increment()
	})
	bar.Finish()
	if err != nil {
		log.Fatal(err)
	}

	for _, f := range character.Failures {
		log.Printf("part %s: %v (policy %s)", f.Group, f, cfg.Synthesis.MissingPolicy)
	}
	if len(character.Omitted) > 0 {
		log.Printf("omitted parts: %v", character.Omitted)
	}
	log.Printf("skeleton hash=%s bones=%d slots=%d", character.Skeleton.Skeleton.Hash, len(character.Skeleton.Bones), len(character.Skeleton.Slots))

	writer := bundle.NewWriter(cfg.EncodeOptions())
	if dir {
		target := filepath.Join(cfg.Output.OutputDir, utils.BaseName(in))
		written, err := writer.WriteDir(target, character.Bundle())
		if err != nil {
			log.Fatal(err)
		}
		for _, path := range written {
			log.Printf("wrote %s", path)
		}
	} else {
		archive := filepath.Join(cfg.Output.OutputDir, utils.SanitizeFilename(cfg.Output.ArchiveName))
		if err := writer.SaveArchive(archive, character.Bundle()); err != nil {
			log.Fatal(err)
		}
		logWrote(archive)
	}

	if cfg.Output.Overlay {
		ov := processor.CreatePoseOverlay(img, character.Pose, character.Segmentation, r.Synthesizer())
		path := utils.GenerateOutputFilename(in, cfg.Output.OutputDir, "", "_overlay", "png")
		if err := processor.SaveImage(ov, path, types.EncodeConfig{Format: "png"}); err != nil {
			log.Printf("overlay save failed: %v", err)
		} else {
			logWrote(path)
		}
	}
}

// loadPhoto fetches URLs directly and loads files through the rigger so
// the supported format list applies
func loadPhoto(r *rigger.Rigger, processor *processing.Processor, in string) (image.Image, error) {
	if strings.HasPrefix(in, "http://") || strings.HasPrefix(in, "https://") {
		return processor.LoadImageFromURL(in)
	}
	return r.LoadImage(in)
}

func loadConfig(path string) *config.Config {
	cfg := config.Default()
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("invalid environment: %v", err)
	}
	return cfg
}

func poseSource(cfg *config.Config, in, posePath string) client.PoseEstimator {
	var vc client.VisionClient
	switch cfg.Pose.Backend {
	case "ollama":
		oc, err := ollama.NewClient(cfg.Pose.URL)
		if err != nil {
			log.Fatalf("Failed to create Ollama client: %v", err)
		}
		vc = oc
	case "llamacpp":
		lc, err := llamacpp.NewClient(cfg.Pose.URL)
		if err != nil {
			log.Fatalf("Failed to create llama.cpp client: %v", err)
		}
		vc = lc
	default:
		return source.NewPoseFile(resolveSibling(in, posePath, ".pose.json"))
	}
	return detection.NewPoseDetector(vc, detection.Config{
		Model:       cfg.Pose.Model,
		SendSize:    cfg.Pose.SendSize,
		SendQuality: cfg.Pose.SendQuality,
	})
}

// resolveSibling returns explicit when set, else the first existing file
// next to the photo with one of the suffixes
func resolveSibling(photo, explicit string, suffixes ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, s := range suffixes {
		if path, ok := utils.SiblingFile(photo, s); ok {
			return path
		}
	}
	log.Fatalf("no %v found next to %s; pass it explicitly", suffixes, photo)
	return ""
}

func logWrote(path string) {
	if info, err := os.Stat(path); err == nil {
		log.Printf("wrote %s (%s)", path, utils.FormatFileSize(info.Size()))
		return
	}
	log.Printf("wrote %s", path)
}
