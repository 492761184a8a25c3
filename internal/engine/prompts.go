package engine

import (
	"fmt"
	"strings"

	"github.com/kasalabs/ussd-server-go/directory"
)

// Menu and message literals. The CON/END markers are applied by
// ussd.Response.Render, not here.

const mainMenu = "Welcome to KASA - Local Alert System\n" +
	"1. Send Emergency Alert\n" +
	"2. Register User\n" +
	"3. View System Status\n" +
	"4. Help\n" +
	"0. Exit"

const emergencyMenu = "Select Emergency Type:\n" +
	"1. Fire Emergency\n" +
	"2. Medical Emergency\n" +
	"3. Security Alert\n" +
	"4. Natural Disaster\n" +
	"0. Back to Main Menu"

const helpText = "KASA Help:\n" +
	"- Dial this code to send alerts\n" +
	"- Alerts are sent to registered contacts\n" +
	"- For emergencies, call 999"

const (
	promptName          = "Enter your full name:"
	promptNameAgain     = "Please enter your full name:"
	promptLocationAgain = "Please enter your location/area:"
)

const (
	msgGoodbye               = "Thank you for using KASA. Stay safe!"
	msgInvalidOption         = "Invalid option. Please try again."
	msgInvalidEmergencyType  = "Invalid emergency type."
	msgSessionEnded          = "Session ended. Dial again to restart."
	msgSystemError           = "System error. Please try again later."
	msgRegistrationCancelled = "Registration cancelled."
	msgRegistrationError     = "Registration error. Please try again."
	msgAlertCancelled        = "Alert cancelled. Stay safe!"

	alreadyRegisteredHeadline = "You are already registered!"
)

// alertTypes maps the emergency menu selection to its display name.
var alertTypes = map[string]string{
	"1": "Fire Emergency",
	"2": "Medical Emergency",
	"3": "Security Alert",
	"4": "Natural Disaster",
}

func locationPrompt(name string) string {
	return fmt.Sprintf("Hello %s!\nEnter your location/area:", name)
}

func registrationConfirmMenu(name, location string) string {
	return fmt.Sprintf("Confirm registration:\nName: %s\nLocation: %s\n1. Confirm\n2. Cancel\n0. Main Menu", name, location)
}

func alertConfirmMenu(alertType string) string {
	return fmt.Sprintf("Confirm sending %s?\n1. Yes, Send Alert\n2. No, Cancel\n0. Main Menu", alertType)
}

func alreadyRegisteredText(u *directory.User) string {
	return fmt.Sprintf("You are already registered!\nName: %s\nLocation: %s\nRegistered: %s",
		u.Name, u.Location, u.RegisteredAt.Format("2006-01-02"))
}

func statusText(userCount int) string {
	return fmt.Sprintf("KASA System Status:\n"+
		"✓ SMS Service: Online\n"+
		"✓ Alert System: Active\n"+
		"✓ Registered Users: %d\n"+
		"✓ Last Updated: Now\n"+
		"System is operational.", userCount)
}

func registrationSuccessText(name, location, phone string) string {
	return fmt.Sprintf("Registration successful!\nName: %s\nLocation: %s\nPhone: %s\nYou can now receive location alerts!",
		name, location, phone)
}

func alertSentText(alertType, reference, locationInfo string, notified int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s alert sent!\nReference: %s\nLocation: %s", alertType, reference, locationInfo)
	if notified > 0 {
		fmt.Fprintf(&b, "\n✓ %d local users notified", notified)
	}
	b.WriteString("\nStay safe!")
	return b.String()
}

func alertMessage(alertType, location, name, phone string) string {
	return fmt.Sprintf("EMERGENCY ALERT: %s reported in %s. From: %s (%s). Stay alert and safe!",
		alertType, location, name, phone)
}
