package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/beaconobs/internal/config"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

var (
	doctorHeading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	doctorLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	doctorOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	doctorWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check store health and report ingestion stats",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println(doctorHeading.Render("beaconobs doctor"))
	fmt.Println(doctorLabel.Render("Version:") + Version)
	fmt.Println(doctorLabel.Render("OS:") + fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	fmt.Println(doctorLabel.Render("Go:") + runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(doctorLabel.Render("Config:") + doctorWarn.Render(cfgPath+" (not found, using defaults)"))
	} else {
		fmt.Println(doctorLabel.Render("Config:") + doctorOK.Render(cfgPath))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println(doctorWarn.Render("config load error: " + err.Error()))
		return
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		fmt.Println(doctorWarn.Render("store open failed: " + err.Error()))
		return
	}
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		fmt.Println(doctorWarn.Render("store stats failed: " + err.Error()))
		return
	}

	fmt.Println()
	fmt.Println(doctorHeading.Render("Store"))
	fmt.Println(doctorLabel.Render("Path:") + doctorOK.Render(cfg.Store.Path))
	fmt.Println(doctorLabel.Render("Traces:") + fmt.Sprintf("%d", stats.TraceCount))
	fmt.Println(doctorLabel.Render("Spans:") + fmt.Sprintf("%d", stats.SpanCount))
	fmt.Println(doctorLabel.Render("Size:") + fmt.Sprintf("%.1f KB", float64(stats.DBSizeBytes)/1024))

	fmt.Println()
	fmt.Println(doctorHeading.Render("Providers"))
	checkProvider("OpenAI", cfg.Providers.OpenAIAPIKey)
	checkProvider("Anthropic", cfg.Providers.AnthropicAPIKey)
	checkProvider("Google", cfg.Providers.GoogleAPIKey)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Println(doctorLabel.Render(name+":") + doctorWarn.Render("not configured"))
		return
	}
	masked := apiKey
	if len(apiKey) > 8 {
		masked = apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
	}
	fmt.Println(doctorLabel.Render(name+":") + doctorOK.Render(masked))
}
