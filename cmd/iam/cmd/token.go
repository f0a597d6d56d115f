package cmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/ivanovaleksey/iam-sub000/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Token and key utilities",
}

var (
	keygenPrivate string
	keygenPublic  string
	keygenForce   bool
)

var tokenKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ES256 key pair",
	Long: `Generates a P-256 key pair and writes both halves as PEM files. The
private key file is what tokens.keyfile points at; the public key file goes
into authentication.keyfile or a provider entry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !keygenForce {
			for _, path := range []string{keygenPrivate, keygenPublic} {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists, use --force to overwrite", path)
				}
			}
		}

		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}

		privatePEM, err := auth.EncodePrivateKey(key)
		if err != nil {
			return err
		}
		publicPEM, err := auth.EncodePublicKey(&key.PublicKey)
		if err != nil {
			return err
		}

		if err := os.WriteFile(keygenPrivate, privatePEM, 0600); err != nil {
			return fmt.Errorf("write private key: %w", err)
		}
		if err := os.WriteFile(keygenPublic, publicPEM, 0644); err != nil {
			return fmt.Errorf("write public key: %w", err)
		}

		fmt.Println("✓ Key pair written")
		fmt.Printf("  private: %s\n", keygenPrivate)
		fmt.Printf("  public:  %s\n", keygenPublic)
		fmt.Printf("  kid:     %s\n", auth.Fingerprint(&key.PublicKey))
		return nil
	},
}

var (
	mintKeyfile   string
	mintIssuer    string
	mintSubject   string
	mintExpiresIn int
)

var tokenMintClientCmd = &cobra.Command{
	Use:   "mint-client",
	Short: "Mint a provider-signed client token",
	Long: `Signs a client token the way an identity provider would, for exercising
the token retrieve flow. The keyfile must hold the provider's ES256 private
key and the issuer must match the provider entry in the server config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(mintKeyfile)
		if err != nil {
			return fmt.Errorf("read keyfile: %w", err)
		}
		key, err := jwt.ParseECPrivateKeyFromPEM(data)
		if err != nil {
			return fmt.Errorf("parse keyfile: %w", err)
		}

		token, err := auth.MintClientToken(key, mintIssuer, mintSubject, time.Duration(mintExpiresIn)*time.Second)
		if err != nil {
			return err
		}

		fmt.Println(token)
		return nil
	},
}

var tokenDecodeCmd = &cobra.Command{
	Use:   "decode <token>",
	Short: "Decode a token without verifying it",
	Long:  `Prints the header and claims of a JWT. The signature is NOT checked.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claims := jwt.MapClaims{}
		token, _, err := jwt.NewParser().ParseUnverified(args[0], claims)
		if err != nil {
			return fmt.Errorf("decode token: %w", err)
		}

		header, err := json.MarshalIndent(token.Header, "", "  ")
		if err != nil {
			return err
		}
		body, err := json.MarshalIndent(claims, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(header))
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenKeygenCmd)
	tokenCmd.AddCommand(tokenMintClientCmd)
	tokenCmd.AddCommand(tokenDecodeCmd)

	tokenKeygenCmd.Flags().StringVar(&keygenPrivate, "private", "iam.private.pem", "Path for the private key PEM")
	tokenKeygenCmd.Flags().StringVar(&keygenPublic, "public", "iam.public.pem", "Path for the public key PEM")
	tokenKeygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite existing files")

	tokenMintClientCmd.Flags().StringVar(&mintKeyfile, "keyfile", "", "Provider private key PEM")
	tokenMintClientCmd.Flags().StringVar(&mintIssuer, "issuer", "", "Provider issuer (iss claim)")
	tokenMintClientCmd.Flags().StringVar(&mintSubject, "sub", "", "Provider-side subject (sub claim)")
	tokenMintClientCmd.Flags().IntVar(&mintExpiresIn, "expires-in", 300, "Token lifetime in seconds")
	_ = tokenMintClientCmd.MarkFlagRequired("keyfile")
	_ = tokenMintClientCmd.MarkFlagRequired("issuer")
	_ = tokenMintClientCmd.MarkFlagRequired("sub")
}
