// Package domain defines the core business types for the ration bot.
//
// Types in this package are pure value objects with no behavior, no database
// dependencies, and no Telegram concerns. They are the shared language between
// handlers, workers, and stores.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no tgbotapi types, no context.Context in struct fields
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
