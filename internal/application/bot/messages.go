package bot

import (
	"errors"

	"github.com/cutout/backend/internal/application/pipeline"
)

// User-facing reply texts. The webhook channel is plain text, so these are
// complete messages rather than templates rendered elsewhere.
const (
	msgWelcome = "Welcome to Cutout! Send me a photo and I'll remove its background.\n" +
		"Plan: %s | Used this month: %d/%d\n" +
		"Send HELP for the full command list."

	msgStatus = "Plan: %s\nProcessed this month: %d/%d\nRemaining: %d"

	msgHelp = "Commands:\n" +
		"STATUS - your plan and usage\n" +
		"UPGRADE - premium pricing\n" +
		"CONFIRM - get your checkout link\n" +
		"VERIFY - check your upgrade\n" +
		"Or just send a photo to remove its background."

	msgUpgrade = "Premium is %s per month for %d images. Reply CONFIRM to get your checkout link."

	msgCheckout = "Complete your upgrade here: %s\nAfter paying, send VERIFY to activate premium."

	msgVerifyPremium = "You're on Premium! %d images per month. Send a photo to get started."

	msgVerifyPending = "Your upgrade hasn't been confirmed yet. If you've just paid, wait a moment and send VERIFY again."

	msgUnrecognized = "I didn't understand that. Send HELP for the command list, or send a photo to remove its background."

	msgProcessing = "Processing your image, this takes a few seconds..."

	msgSuccess = "Done! Here's your image with the background removed. %d left this month."

	msgLimitReached = "You've used all %d images for this month. Reply UPGRADE to get more."

	msgRemovalNotConfigured = "Image processing isn't available right now. Please try again later."

	msgPaymentNotConfigured = "Upgrades aren't available right now. Please try again later."

	msgGenericError = "Something went wrong on our side. Please try again in a moment."
)

// failureMessage maps a classified pipeline failure to the user-facing
// reply. The consumed quota unit is not refunded for any of these.
func failureMessage(err error) string {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		return msgGenericError
	}

	switch stageErr.Reason {
	case pipeline.ReasonTooLarge:
		return "That image is too large. Please send one under 25 MB."
	case pipeline.ReasonFetchFailed:
		return "I couldn't download your image. Please try sending it again."
	case pipeline.ReasonTransformFailed:
		if stageErr.Detail != "" {
			return "The background removal service reported a problem: " + stageErr.Detail
		}
		return "The background removal service is having trouble. Please try again later."
	case pipeline.ReasonUnexpectedOutputFormat:
		return "The processed image came back in an unexpected format. Please try again."
	case pipeline.ReasonPersistFailed:
		return "Your image was processed but couldn't be saved. Please try again."
	default:
		return msgGenericError
	}
}
