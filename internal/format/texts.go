package format

import (
	"fmt"
	"strings"
)

// Fixed replies.
const (
	TrackPrompt = "📦 Please send your order ID (for example #a1b2c3d4) and I'll look it up."

	SearchPrompt          = "🔍 What are you looking for? Type the name of a medicine or product."
	SearchMedicinesPrompt = "💊 Type the name of the medicine you are looking for."
	SearchProductsPrompt  = "🛒 Type the name of the product you are looking for."

	SearchTooShort = "Please type at least 2 characters to search."

	NoRecentOrders    = "You don't have any recent orders yet. Type a medicine name to start shopping."
	NoAccount         = "We couldn't find an account linked to this number. Place your first order to see it here."
	OrdersUnavailable = "Sorry, we couldn't load your orders right now. Please try again in a few minutes."
	PhoneRequired     = "📱 Orders and prescriptions are linked to your WhatsApp number. Please message us on WhatsApp from the number you order with."

	PrescriptionInstructions = "📄 Send a clear photo or PDF of your prescription here. Add a note in the caption if you like, and our pharmacist will review it."
	PrescriptionFailed       = "Sorry, we couldn't save your prescription. Please try sending it again."

	UnsupportedMedia = "Sorry, I can only read text, photos and PDFs. Reply *menu* to see what I can do."

	Apology = "Sorry, something went wrong on our side. Please try again, or reply *menu* to start over."
)

// NoResults is the reply for a search with no hits.
func NoResults(query string) string {
	return fmt.Sprintf("No results found for \"%s\". Try a different spelling or reply *menu* for options.", strings.TrimSpace(query))
}

// OrderNotFound is the reply for an identifier no lookup stage could resolve.
func OrderNotFound(displayID string) string {
	return fmt.Sprintf("We couldn't find order #%s for this number. Please check the ID and try again.", displayID)
}

// PrescriptionReceived confirms a stored prescription.
func PrescriptionReceived(ref string) string {
	return fmt.Sprintf("✅ Prescription received (ref %s). Our pharmacist will review it and get back to you shortly.", ref)
}

// Support renders the contact text; contact may be empty.
func Support(contact string) string {
	if strings.TrimSpace(contact) == "" {
		return "🙋 Our support team will get back to you here shortly. Reply *menu* to return to the main menu."
	}
	return fmt.Sprintf("🙋 You can reach our support team at %s. Reply *menu* to return to the main menu.", contact)
}
