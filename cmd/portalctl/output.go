package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"portald/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printTools(snapshot *domain.Snapshot, jsonOutput bool) error {
	if snapshot == nil {
		return nil
	}
	if jsonOutput {
		tools := make([]map[string]any, 0, len(snapshot.Tools))
		for _, tool := range snapshot.Tools {
			entry := map[string]any{
				"name":        tool.Name,
				"description": tool.Description,
				"portal":      tool.PortalID,
			}
			if tool.Operation != "" {
				entry["operation"] = tool.Operation
			}
			if tool.Synthesized {
				entry["synthesized"] = true
			}
			tools = append(tools, entry)
		}
		return writeJSON(map[string]any{
			"etag":  snapshot.ETag,
			"tools": tools,
		})
	}
	fmt.Printf("etag=%s tools=%d\n", snapshot.ETag, len(snapshot.Tools))
	for _, tool := range snapshot.Tools {
		marker := ""
		if tool.Synthesized {
			marker = " (synthesized)"
		}
		fmt.Printf("%s\t%s%s\n", tool.Name, tool.PortalID, marker)
	}
	return nil
}

func printPortals(snapshot *domain.Snapshot, jsonOutput bool) error {
	if snapshot == nil {
		return nil
	}
	ids := make([]string, 0, len(snapshot.Portals))
	for id := range snapshot.Portals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if jsonOutput {
		portals := make([]map[string]any, 0, len(ids))
		for _, id := range ids {
			entry := snapshot.Portals[id]
			portals = append(portals, map[string]any{
				"id":        entry.Portal.ID,
				"title":     entry.Portal.Title,
				"url":       entry.Portal.URL,
				"source":    string(entry.Source),
				"tools":     len(entry.Tools),
				"fetchedAt": entry.FetchedAt,
			})
		}
		return writeJSON(map[string]any{"portals": portals})
	}
	fmt.Printf("portals=%d\n", len(ids))
	for _, id := range ids {
		entry := snapshot.Portals[id]
		fmt.Printf("%s\t%s\ttools=%d\tsource=%s\n", entry.Portal.ID, entry.Portal.Title, len(entry.Tools), entry.Source)
	}
	return nil
}

func printAddress(address string, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(map[string]any{"address": address})
	}
	fmt.Println(address)
	return nil
}

func printBalance(balance domain.Balance, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(balance)
	}
	fmt.Printf("%s\t%s\n", balance.Gas.Symbol, balance.Gas.Amount)
	fmt.Printf("%s\t%s\n", balance.Payment.Symbol, balance.Payment.Amount)
	return nil
}
