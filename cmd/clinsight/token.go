package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clinsight/config"
	"clinsight/internal/runtime"
)

// tokenCMD mints a JWT for local testing without going through signup.
func tokenCMD() *cobra.Command {
	var cfgPath, subject string
	var token = &cobra.Command{
		Use:   "token",
		Short: "Mint a development JWT",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("server.jwt_secret not set (CLINSIGHT_SERVER_JWT_SECRET)")
			}
			signed, err := runtime.SignJWT(subject, []byte(cfg.Server.JWTSecret), cfg.Server.TokenTTL)
			if err != nil {
				return err
			}
			fmt.Println(signed)
			return nil
		},
	}
	token.Flags().StringVar(&subject, "subject", "dev", "token subject")
	token.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	return token
}
