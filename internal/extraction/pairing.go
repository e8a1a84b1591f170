package extraction

// pendingName holds at most one name waiting for a price on the next line.
// A new name replaces the old one; nothing is queued.
type pendingName struct {
	name string
	ok   bool
}

func (p *pendingName) set(name string) {
	p.name, p.ok = name, true
}

func (p *pendingName) clear() {
	p.name, p.ok = "", false
}

// take returns the pending name, if any, and clears the slot.
func (p *pendingName) take() (string, bool) {
	name, ok := p.name, p.ok
	p.clear()
	return name, ok
}

// pairLines runs the pairing state machine over lines in document order.
// A name candidate only pairs with a standalone price on the very next
// line; anything else in between discards it.
func (e *Extractor) pairLines(lines []string, docCtx DocumentContext) []Item {
	items := make([]Item, 0)
	var pending pendingName

	for i, raw := range lines {
		line := e.classifier.Classify(raw)

		switch line.Kind {
		case NameCandidate:
			pending.set(line.Name)

		case StandalonePrice:
			name, ok := pending.take()
			if !ok {
				continue
			}
			if !docCtx.admits(line.Price, e.cfg.ExcludeMaxAmount) {
				e.logger.Debug("Dropping pairing above max amount",
					"line", i, "name", name, "price", line.Price, "max_amount", docCtx.MaxAmount)
				continue
			}
			items = e.accept(items, i, name, line.Price)

		case SameLineItem:
			pending.clear()
			if e.cfg.ExcludeMaxAmount && !docCtx.admits(line.Price, true) {
				e.logger.Debug("Dropping same-line item at max amount",
					"line", i, "name", line.Name, "price", line.Price, "max_amount", docCtx.MaxAmount)
				continue
			}
			items = e.accept(items, i, line.Name, line.Price)

		default:
			pending.clear()
		}
	}
	return items
}

func (e *Extractor) accept(items []Item, line int, name string, price float64) []Item {
	if err := e.validator.Validate(name, price); err != nil {
		e.logger.Debug("Dropping candidate", "line", line, "name", name, "price", price, "reason", err)
		return items
	}
	return append(items, Item{Name: name, Price: price, Quantity: 1})
}
