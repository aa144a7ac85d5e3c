package cmd

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/palfrey/tavern/internal/config"
	"github.com/palfrey/tavern/internal/ui"
	"github.com/palfrey/tavern/internal/version"
)

var (
	flagDomain   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "tavern",
	Short:   "Drop-in video chat rooms over a WebRTC mesh",
	Long:    `Tavern is a command-line video chat client. Participants enter shared rooms ("pubs") and sit down at tables within them; everyone at the same table exchanges camera video directly over a full mesh of WebRTC peer connections, coordinated through a single websocket control channel.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDomain, "domain", "", "signaling server domain")
	rootCmd.PersistentFlags().StringVar(&flagSTUN, "stun", "", "STUN server URL")
	rootCmd.PersistentFlags().StringVar(&flagTURN, "turn", "", "TURN server URL")
	rootCmd.PersistentFlags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	rootCmd.PersistentFlags().StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	rootCmd.PersistentFlags().BoolVar(&flagRelay, "relay", false, "force all media through the TURN relay")
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		Domain:     flagDomain,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
