package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"matchcrawl/pkg/auth"
	"matchcrawl/pkg/config"
	"matchcrawl/pkg/logger"
)

// authCmd groups credential management commands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored credentials",
	Long: `Manage the token bundle the crawler refreshes and persists.

The bundle lives in a plain JSON file so the refresh loop can replace it
wholesale; seed it once with tokens captured from a logged-in browser
session and the crawler keeps it fresh from then on.`,
}

// loginCmd seeds the token file with an initial bundle
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Seed the token file with initial tokens",
	Long: `Store an initial access/refresh token pair.

To get these values:
1. Log into the platform in your browser
2. Open Developer Tools (F12) and watch the network tab
3. Copy the access_token and refresh_token from an authenticated request`,
	Run: runLogin,
}

// logoutCmd removes the stored bundle
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token bundle",
	Run:   runLogout,
}

func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(authCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	accessToken, err := promptSecret("Access token: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read access token: %v\n", err)
		os.Exit(1)
	}
	refreshToken, err := promptSecret("Refresh token: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read refresh token: %v\n", err)
		os.Exit(1)
	}

	if accessToken == "" || refreshToken == "" {
		fmt.Fprintln(os.Stderr, "both tokens are required")
		os.Exit(1)
	}

	bundle := auth.TokenBundle{
		AccessToken:  auth.AccessToken{AccessToken: accessToken},
		RefreshToken: auth.RefreshToken{RefreshToken: refreshToken},
	}

	tokenStore := auth.NewFileStore(cfg.TokenPath(), logger.GetLogger())
	if err := tokenStore.Save(bundle); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save tokens: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Tokens saved to %s\n", cfg.TokenPath())
}

func runLogout(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := os.Remove(cfg.TokenPath()); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to remove token file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Stored tokens removed")
}

// promptSecret reads a value without echoing it when stdin is a terminal
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)

	if term.IsTerminal(int(syscall.Stdin)) {
		value, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(value)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
