package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/banana-tryon/tryon/internal/cart"
	"github.com/banana-tryon/tryon/internal/config"
	"github.com/banana-tryon/tryon/internal/console"
	"github.com/banana-tryon/tryon/internal/gateway"
	"github.com/banana-tryon/tryon/internal/media"
	"github.com/banana-tryon/tryon/internal/models"
	"github.com/banana-tryon/tryon/internal/storage"
	"github.com/banana-tryon/tryon/internal/workflow"
)

type submitOptions struct {
	imagePath  string
	cameraPath string
	outPath    string
	addToCart  bool
	product    models.Product
}

func newSubmitCmd(root *rootOptions) *cobra.Command {
	opts := &submitOptions{}
	var endpoint, storeURL string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Run the shopper try-on workflow from the terminal",
		Long: `Runs one try-on session against a proxy.

The person photo is either picked from a file (--image) or captured from a
still-frame camera backed by a file (--camera). The result is written to
--out. With --add-to-cart the product variant is added to the storefront
cart afterwards.`,
		Example: `  # Submit a photo to a local proxy
  tryon submit --endpoint http://localhost:8888/api/tryon \
    --image me.jpg --product-image //cdn.shop.example/files/shirt.png

  # Go through the storefront app proxy and add the variant to the cart
  tryon submit --store-url https://shop.example/ --image me.jpg \
    --product-image //cdn.shop.example/files/shirt.png --variant-id 4242 --add-to-cart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			cfg.Merge(config.Config{Endpoint: endpoint, StoreURL: storeURL})

			return runSubmit(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.imagePath, "image", "i", "", "Person photo to upload")
	cmd.Flags().StringVar(&opts.cameraPath, "camera", "", "Image file served as a still-frame camera")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "tryon-result.png", "Where to write the result image")
	cmd.Flags().BoolVar(&opts.addToCart, "add-to-cart", false, "Add the variant to the cart after a successful try-on")
	cmd.Flags().StringVar(&opts.product.ID, "product-id", "", "Product id")
	cmd.Flags().StringVar(&opts.product.VariantID, "variant-id", "", "Numeric variant id for add-to-cart")
	cmd.Flags().StringVar(&opts.product.Title, "title", "", "Product title")
	cmd.Flags().StringVar(&opts.product.ImageURL, "product-image", "", "Product image reference")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Submission endpoint (default from TRYON_ENDPOINT)")
	cmd.Flags().StringVar(&storeURL, "store-url", "", "Storefront root (default from TRYON_STORE_URL)")
	cmd.MarkFlagsMutuallyExclusive("image", "camera")
	cmd.MarkFlagsOneRequired("image", "camera")

	return cmd
}

func runSubmit(ctx context.Context, out io.Writer, cfg config.Config, opts *submitOptions) error {
	submitURL, err := cfg.SubmitURL()
	if err != nil {
		return err
	}
	if opts.addToCart && cfg.StoreURL == "" {
		return errors.New("TRYON_STORE_URL is required to add to cart")
	}

	surface := console.New(out)
	deps := workflow.Deps{
		Surface:    surface,
		Viewfinder: surface.Viewfinder(),
		Gateway:    gateway.New(submitURL),
		URLs:       storage.New(),
	}
	if opts.cameraPath != "" {
		cam, err := media.NewStillCameraFromFile(opts.cameraPath)
		if err != nil {
			return err
		}
		deps.Camera = cam
	} else {
		deps.Picker = &media.DiskPicker{Path: opts.imagePath}
	}
	if opts.addToCart {
		svc := cart.NewService(cart.NewClient(cfg.StoreURL, nil))
		svc.AddIndicator(surface)
		svc.Subscribe(surface)
		deps.Cart = svc
	}

	m, err := workflow.New(opts.product, deps)
	if err != nil {
		return err
	}
	if err := m.Open(); err != nil {
		return err
	}
	defer func() {
		m.Close()
		m.Wait()
	}()

	if err := acquire(ctx, m, opts.cameraPath != ""); err != nil {
		return err
	}

	if err := m.Submit(ctx); err != nil {
		return err
	}
	m.Wait()
	snap := m.Snapshot()
	if snap.State != workflow.Result || snap.Result == nil {
		return sessionError(snap)
	}

	if err := os.WriteFile(opts.outPath, snap.Result.Data, 0644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	slog.Info("Result saved", "path", opts.outPath, "mime", snap.Result.MIMEType, "bytes", len(snap.Result.Data))

	if !opts.addToCart {
		return nil
	}
	if err := m.AddToCart(ctx); err != nil {
		return err
	}
	m.Wait()
	if snap := m.Snapshot(); snap.State == workflow.Error {
		return sessionError(snap)
	}
	return nil
}

// acquire brings the session to Preview from a file or the camera
func acquire(ctx context.Context, m *workflow.Machine, useCamera bool) error {
	if useCamera {
		if err := m.RequestCamera(ctx); err != nil {
			return err
		}
		m.Wait()
		if snap := m.Snapshot(); snap.State != workflow.Camera {
			return sessionError(snap)
		}
		if err := m.Capture(); err != nil {
			return err
		}
	} else {
		if err := m.ChooseFile(ctx); err != nil {
			return err
		}
		m.Wait()
	}

	snap := m.Snapshot()
	if snap.State == workflow.Options {
		return errors.New("no image selected")
	}
	if snap.State != workflow.Preview {
		return sessionError(snap)
	}
	return nil
}

func sessionError(snap workflow.Session) error {
	if snap.LastError != nil {
		return fmt.Errorf("%s: %s", snap.LastError.Title, snap.LastError.Message)
	}
	return fmt.Errorf("try-on ended in %s", snap.State)
}
