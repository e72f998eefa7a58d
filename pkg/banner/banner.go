package banner

import (
	"fmt"

	"branchchat/pkg/config"
)

const banner = `
██████╗ ██████╗  █████╗ ███╗   ██╗ ██████╗██╗  ██╗ ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██╔══██╗██╔══██╗████╗  ██║██╔════╝██║  ██║██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██████╔╝██████╔╝███████║██╔██╗ ██║██║     ███████║██║     ███████║███████║   ██║
██╔══██╗██╔══██╗██╔══██║██║╚██╗██║██║     ██╔══██║██║     ██╔══██║██╔══██║   ██║
██████╔╝██║  ██║██║  ██║██║ ╚████║╚██████╗██║  ██║╚██████╗██║  ██║██║  ██║   ██║
╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the startup banner using the effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if eff.Config != nil {
		fmt.Printf("Upstream: %s (%s)\n", eff.Config.UpstreamBaseURL(), eff.Config.UpstreamModel())
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config sources: %s\n", src)
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/chat - Streaming chat completion (JSON: conversationId, messages, systemPrompt, branchFromIndex)")
	fmt.Println("GET  /v1/conversations - List conversations")
	fmt.Println("POST /v1/conversations/{id}/switch-branch - Switch the active branch")
	fmt.Println("GET  /v1/keys - Manage upstream API keys")
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a proper storage path (--db)")
	fmt.Println("Add authentication in front of the management endpoints")
}
