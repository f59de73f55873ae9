package cli

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/kioskd/kioskd/internal/credentials"
	"github.com/kioskd/kioskd/internal/models"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted service credential",
	// Sealing works without a kiosk configuration
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var sealCmd = &cobra.Command{
	Use:   "seal",
	Short: "Encrypt a service credential for KIOSK_SECRET_*",
	Long: `Encrypt a service account JSON file with AES-GCM.

The ciphertext is written to --out and the environment lines needed to
decrypt it are printed. Without --key a random AES-256 key is generated.

Key material that decodes (hex or base64) to 16, 24 or 32 bytes is used as
the AES key directly. Anything else is treated as a passphrase and stretched
with PBKDF2 using --salt.`,
	RunE: runSeal,
}

// sealedSecrets is the result of sealing, ready to be printed as env lines.
type sealedSecrets struct {
	Key            string
	IV             string
	Tag            string
	Salt           string
	CiphertextPath string
}

func (s sealedSecrets) envLines() []string {
	lines := []string{
		"KIOSK_SECRET_KEY=" + s.Key,
		"KIOSK_SECRET_IV=" + s.IV,
		"KIOSK_SECRET_TAG=" + s.Tag,
		"KIOSK_SECRET_CIPHERTEXT=" + s.CiphertextPath,
	}
	if len(s.Salt) > 0 {
		lines = append(lines, "KIOSK_SECRET_SALT="+s.Salt)
	}
	return lines
}

// sealCredential validates raw as a service credential, encrypts it and
// writes the base64 ciphertext to out.
func sealCredential(fs afero.Fs, raw []byte, material, salt, out string) (sealedSecrets, error) {
	if _, err := models.NewCredential(raw); err != nil {
		return sealedSecrets{}, err
	}

	if len(material) == 0 {
		generated, err := credentials.GenerateKey()
		if err != nil {
			return sealedSecrets{}, err
		}
		material = hex.EncodeToString(generated)
	}

	key := credentials.DeriveKey(material, salt)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	bundle, err := credentials.Seal(key, raw)
	if err != nil {
		return sealedSecrets{}, err
	}

	encoded := base64.StdEncoding.EncodeToString(bundle.Ciphertext)
	if err := afero.WriteFile(fs, out, []byte(encoded+"\n"), 0o600); err != nil {
		return sealedSecrets{}, fmt.Errorf("failed to write ciphertext: %w", err)
	}

	return sealedSecrets{
		Key:            material,
		IV:             hex.EncodeToString(bundle.IV),
		Tag:            hex.EncodeToString(bundle.Tag),
		Salt:           salt,
		CiphertextPath: out,
	}, nil
}

func confirmOverwrite(path string) (bool, error) {
	var overwrite bool

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("%s already exists. Overwrite it?", path)).
				Description("The previous ciphertext cannot be recovered afterwards").
				Value(&overwrite),
		),
	)

	if err := form.Run(); err != nil {
		return false, fmt.Errorf("overwrite prompt cancelled: %w", err)
	}
	return overwrite, nil
}

func runSeal(cmd *cobra.Command, _ []string) error {
	in, _ := cmd.Flags().GetString("in")
	out, _ := cmd.Flags().GetString("out")
	material, _ := cmd.Flags().GetString("key")
	salt, _ := cmd.Flags().GetString("salt")
	force, _ := cmd.Flags().GetBool("force")

	raw, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("failed to read credential: %w", err)
	}

	out, err = filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}

	if _, err := os.Stat(out); err == nil && !force {
		ok, err := confirmOverwrite(out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println(warningStyle.Render("Nothing written"))
			return nil
		}
	}

	sealed, err := sealCredential(afero.NewOsFs(), raw, material, salt, out)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Credential sealed"))
	fmt.Println(infoStyle.Render("Add these lines to the kiosk environment or .env file:"))
	fmt.Println()
	for _, line := range sealed.envLines() {
		fmt.Println(envLineStyle.Render(line))
	}
	fmt.Println()
	fmt.Println(successStyle.Render("Ciphertext written to " + out))

	return nil
}

func init() {
	sealCmd.Flags().String("in", "", "Service account JSON file to encrypt")
	sealCmd.Flags().String("out", "credential.enc", "Where to write the ciphertext")
	sealCmd.Flags().String("key", "", "Key material (hex, base64 or a passphrase); random when empty")
	sealCmd.Flags().String("salt", "", "PBKDF2 salt used when the key is a passphrase")
	sealCmd.Flags().Bool("force", false, "Overwrite --out without asking")
	_ = sealCmd.MarkFlagRequired("in")

	secretsCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(secretsCmd)
}
